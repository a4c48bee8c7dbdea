/*
Client fetching a single file from a tftp-server
*/
package main

import "github.com/skycoin/skytftp/cmd/tftp-client/commands"

func main() {
	commands.Execute()
}
