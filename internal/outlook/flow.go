package outlook

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Flow is the mailbox operation run after sign-in.
type Flow string

const (
	FlowJunk    Flow = "junk"
	FlowUnjunk  Flow = "unjunk"
	FlowDelete  Flow = "delete"
	FlowArchive Flow = "archive"
)

var flows = []Flow{FlowJunk, FlowUnjunk, FlowDelete, FlowArchive}

func ParseFlow(s string) (Flow, error) {
	f := Flow(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range flows {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown flow %q (want one of junk, unjunk, delete, archive)", s)
}

func (f Flow) String() string { return string(f) }

// InputFile is the target list conventionally used for the flow,
// e.g. emails/emails_to_junk.csv.
func (f Flow) InputFile(dir string) string {
	return filepath.Join(dir, "emails_to_"+string(f)+".csv")
}
