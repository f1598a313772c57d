package usecase

import (
	"context"
	"fmt"

	"github.com/example/devinsights/internal/period"
	"github.com/example/devinsights/internal/warehouse"
)

// DeveloperActivity counts, per developer and day, the commits authored and pull requests opened.
// Rows where both counts are zero are never returned.
func (uc *ProductivityUseCase) DeveloperActivity(ctx context.Context, w period.Window) ([]DeveloperActivityPoint, error) {
	const op = "productivity.developer_activity"

	repo := repositoryFilter(w, "pr.repo_full_name")
	sql := fmt.Sprintf(`
        WITH commit_activity AS (
          SELECT
            TRIM(JSON_VALUE(c.commit_author)) AS developer,
            FORMAT_DATE('%%Y-%%m-%%d', DATE(SAFE_CAST(JSON_VALUE(c.commit_timestamp) AS TIMESTAMP))) AS activity_date,
            COUNT(DISTINCT JSON_VALUE(c.commit_hash)) AS commit_count
          FROM %[1]s AS c
          JOIN %[2]s AS pr ON pr._id = c.pull_request_id
          WHERE pr.organizationId = @organizationId
            AND SAFE_CAST(JSON_VALUE(c.commit_timestamp) AS TIMESTAMP) >= TIMESTAMP(@startDate)
            AND SAFE_CAST(JSON_VALUE(c.commit_timestamp) AS TIMESTAMP) < TIMESTAMP_ADD(TIMESTAMP(@endDate), INTERVAL 1 DAY)
            AND TRIM(JSON_VALUE(c.commit_author)) <> ''
            %[4]s
          GROUP BY developer, activity_date
        ),
        pr_activity AS (
          SELECT
            TRIM(JSON_VALUE(a.author_username)) AS developer,
            FORMAT_DATE('%%Y-%%m-%%d', DATE(pr.parsed_created_at)) AS activity_date,
            COUNT(DISTINCT pr._id) AS pr_count
          FROM %[2]s AS pr
          JOIN %[3]s AS a ON a.pull_request_id = pr._id
          WHERE pr.organizationId = @organizationId
            AND pr.parsed_created_at >= TIMESTAMP(@startDate)
            AND pr.parsed_created_at < TIMESTAMP_ADD(TIMESTAMP(@endDate), INTERVAL 1 DAY)
            AND TRIM(JSON_VALUE(a.author_username)) <> ''
            %[4]s
          GROUP BY developer, activity_date
        )
        SELECT
          COALESCE(c.developer, p.developer) AS developer,
          COALESCE(c.activity_date, p.activity_date) AS activity_date,
          COALESCE(c.commit_count, 0) AS commit_count,
          COALESCE(p.pr_count, 0) AS pr_count
        FROM commit_activity AS c
        FULL OUTER JOIN pr_activity AS p
          ON c.developer = p.developer AND c.activity_date = p.activity_date
        WHERE COALESCE(c.commit_count, 0) + COALESCE(p.pr_count, 0) > 0
        ORDER BY developer, activity_date`,
		uc.table(warehouse.DatasetMongo, warehouse.TableCommits), uc.pullRequests(),
		uc.table(warehouse.DatasetMongo, warehouse.TablePullRequestAuthors), repo)

	rows, err := uc.query(ctx, op, w, sql, w.Params())
	if err != nil {
		return nil, err
	}

	points := make([]DeveloperActivityPoint, 0, len(rows))
	for _, row := range rows {
		commits, prs := row.Int64("commit_count"), row.Int64("pr_count")
		if commits == 0 && prs == 0 {
			continue
		}
		points = append(points, DeveloperActivityPoint{
			Developer:   row.StringOr("developer", "Unknown"),
			Date:        row.String("activity_date"),
			CommitCount: commits,
			PRCount:     prs,
		})
	}
	return points, nil
}
