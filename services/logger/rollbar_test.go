package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-results/core/result"
	testutil "github.com/trezcool/masomo-results/tests"
)

func TestRollbarLogger(t *testing.T) {
	key := result.GroupKey{ClassID: "JSS1A", SubjectID: "MTH", Session: "2023/2024", Term: "1"}
	tests := []struct {
		name  string
		log   func(l *RollbarLogger)
		wants []string
	}{
		{
			name:  "actor",
			log:   func(l *RollbarLogger) { l.Info("published 3 results", testutil.Admin()) },
			wants: []string{"INFO: published 3 results", "actor: admin"},
		},
		{
			name:  "error",
			log:   func(l *RollbarLogger) { l.Error("compilation job failed", errors.New("disk full")) },
			wants: []string{"ERROR: compilation job failed", "disk full"},
		},
		{
			name:  "group",
			log:   func(l *RollbarLogger) { l.Warn("group submitted twice", key, testutil.Admin()) },
			wants: []string{"WARN: group submitted twice", "group: JSS1A/MTH 2023/2024 1", "actor: admin"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewRollbarLogger(log.New(&buf, "", 0), testutil.NewConfig()))

			for _, want := range tt.wants {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
