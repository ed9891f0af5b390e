package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/user"
)

// Now is the frozen clock used across tests.
var Now = time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

// FreezeTime sets core.NowFunc to return at until the test ends.
func FreezeTime(t *testing.T, at time.Time) {
	prev := core.NowFunc
	core.NowFunc = func() time.Time { return at }
	t.Cleanup(func() { core.NowFunc = prev })
}

func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		AppName:          "Masomo Results",
		TestMode:         true,
		DefaultFromEmail: "Masomo <noreply@masomo.test>",
		AdminEmails:      []string{"Principal <principal@masomo.test>"},
		Storage:          core.StorageConfig{Engine: core.StorageMemory, Timeout: time.Second},
		GradingPolicy:    "raw",
		Compilation: core.CompilationConfig{
			AutoApprove:            true,
			AutoCalculatePositions: true,
			NotifyOnCompletion:     true,
			Delay:                  5 * time.Minute,
			ScanInterval:           30 * time.Second,
			StaleAfterScans:        10,
		},
		AccessThreshold: 1,
	}
}

func Admin() user.User {
	return user.User{ID: "admin", Name: "Principal", Email: "principal@masomo.test", Roles: user.AdminRoles}
}

func Supervisor(id string, assignments ...user.Assignment) user.User {
	return user.User{ID: id, Name: "Teacher " + id, Roles: user.SupervisorRoles, Assignments: assignments}
}

func Parent(id string, wards ...string) user.User {
	return user.User{ID: id, Name: "Parent " + id, Roles: user.ParentRoles, Wards: wards}
}

// Logger records log entries instead of reporting them.
type Logger struct {
	mu      sync.Mutex
	Entries []string
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, fmt.Sprintf("%s: %s", level, msg))
}

func (l *Logger) Debug(msg string, _ ...interface{}) { l.log("debug", msg) }
func (l *Logger) Info(msg string, _ ...interface{})  { l.log("info", msg) }
func (l *Logger) Warn(msg string, _ ...interface{})  { l.log("warn", msg) }
func (l *Logger) Error(msg string, _ ...interface{}) { l.log("error", msg) }
func (l *Logger) Fatal(msg string, _ ...interface{}) { l.log("fatal", msg) }

// Count returns how many entries were logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.Entries {
		if len(e) > len(level) && e[:len(level)+1] == level+":" {
			n++
		}
	}
	return n
}
