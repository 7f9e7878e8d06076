package chain

import (
	"encoding/base64"
	"strings"
)

const returnLogPrefix = "Program return: "

// ReturnData extracts the return data of program from transaction logs.
// Only the first "Program return:" line is considered, and it must belong
// to program. It reports false when no such line exists or the payload is
// not valid base64.
func ReturnData(logs []string, program PublicKey) ([]byte, bool) {
	for _, line := range logs {
		if !strings.HasPrefix(line, returnLogPrefix) {
			continue
		}
		rest, ok := strings.CutPrefix(line, returnLogPrefix+program.String()+" ")
		if !ok {
			return nil, false
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest))
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}
