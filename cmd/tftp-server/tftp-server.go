/*
TFTP-style read-only file server
*/
package main

import "github.com/skycoin/skytftp/cmd/tftp-server/commands"

func main() {
	commands.Execute()
}
