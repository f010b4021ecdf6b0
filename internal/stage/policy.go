package stage

import (
	"fmt"
	"path"
	"time"

	"github.com/gosimple/slug"
	"github.com/sethvargo/go-retry"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

// Policy tunes retries, stall detection and where deliveries land.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	StallAfter     time.Duration
	ProductionRoot string
}

// DefaultPolicy returns three attempts with exponential backoff from two
// seconds and a one day stall threshold.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      2 * time.Second,
		MaxDelay:       time.Minute,
		StallAfter:     24 * time.Hour,
		ProductionRoot: "production",
	}
}

// Backoff returns the delay before attempt+1 given that attempt failed.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	b := retry.NewExponential(p.BaseDelay)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d, _ = b.Next()
	}
	return d
}

// ProductionPath is <root>/<project>/<category>/<reference>. Transfers
// without a project link land under "unlinked".
func ProductionPath(root string, t *model.Transfer) string {
	project := "unlinked"
	if ext := t.External; ext != nil {
		switch {
		case ext.ProjectCode != "":
			if s := slug.Make(ext.ProjectCode); s != "" {
				project = s
			}
		case ext.ProjectID != nil:
			project = fmt.Sprintf("project-%d", *ext.ProjectID)
		}
	}
	return path.Join(root, project, string(t.Category), t.Reference)
}
