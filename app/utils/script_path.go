package utils

import "strings"

// Stream names a script result output buffer
type Stream string

const (
	StreamOutput Stream = "combined"
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	StreamResult Stream = "result"
)

var streamSuffixes = []struct {
	suffix string
	stream Stream
}{
	{".out", StreamStdout},
	{".err", StreamStderr},
	{".yaml", StreamResult},
}

// ClassifyPath maps an attachment path to the script result name and stream it targets.
// Paths without a known suffix are stored whole as combined output.
func ClassifyPath(path string) (string, Stream) {
	for _, s := range streamSuffixes {
		if strings.HasSuffix(path, s.suffix) && len(path) > len(s.suffix) {
			return strings.TrimSuffix(path, s.suffix), s.stream
		}
	}
	return path, StreamOutput
}
