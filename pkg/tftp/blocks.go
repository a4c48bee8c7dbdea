package tftp

// Partition splits content into BlockSize chunks in order.
// Every chunk but the last is exactly BlockSize long; the last one is shorter
// unless len(content) is a multiple of BlockSize, in which case no short chunk is produced
// (empty content yields no chunks at all). The terminal packet for that case is added by the Sender.
// Chunks share memory with content.
func Partition(content []byte) [][]byte {
	blocks := make([][]byte, 0, len(content)/BlockSize+1)
	for start := 0; start < len(content); start += BlockSize {
		end := start + BlockSize
		if end > len(content) {
			end = len(content)
		}
		blocks = append(blocks, content[start:end])
	}
	return blocks
}

// blockNumber returns the wire block number of the chunk at index i. Numbers wrap past 255.
func blockNumber(i int) uint8 { return uint8(i + 1) }

// isFinal reports whether a Data payload of the given length ends the transfer.
func isFinal(n int) bool { return n < BlockSize }

// terminalPayload is sent as the final Data packet when every block was full.
var terminalPayload = []byte{0}
