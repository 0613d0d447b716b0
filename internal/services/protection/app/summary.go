package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/louisbranch/wardstone/internal/services/protection/repository"
)

// Summarize describes the repository for operator logs, for example
// "1,204 protections, 1,204 cached (complete), migration complete, 2.1 MB".
// The database size is omitted when dbPath is empty or unreadable.
func Summarize(ctx context.Context, repo *repository.Repository, dbPath string) string {
	cache := repo.Cache()
	total := repo.TotalCount(ctx)

	parts := []string{
		fmt.Sprintf("%s protections", humanize.Comma(total)),
	}
	cached := fmt.Sprintf("%s cached", humanize.Comma(int64(cache.Size())))
	if cache.Complete() && repo.MigrationDone() {
		cached += " (complete)"
	}
	parts = append(parts, cached)

	pipeline := repo.Migration()
	if pipeline.Done() {
		parts = append(parts, "migration complete")
	} else {
		stats := pipeline.Stats()
		parts = append(parts, fmt.Sprintf("migrating %s (%s rows, %s skipped)",
			pipeline.CurrentStage(), humanize.Comma(stats.Handled), humanize.Comma(stats.Failed)))
	}
	if dbPath != "" {
		if info, err := os.Stat(dbPath); err == nil {
			parts = append(parts, humanize.Bytes(uint64(info.Size())))
		}
	}
	return strings.Join(parts, ", ")
}
