package decoder

import (
	"fmt"
	"time"
)

// TimeSpanString formats an utterance time span the way it prefixes
// transcripts, e.g. "5.46 6.81".
func TimeSpanString(begin, end time.Duration) string {
	return fmt.Sprintf("%.2f %.2f", begin.Seconds(), end.Seconds())
}
