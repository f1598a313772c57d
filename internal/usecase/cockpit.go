package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/devinsights/internal/apperr"
	"github.com/example/devinsights/internal/logging"
	"github.com/example/devinsights/internal/warehouse"
)

// CockpitSampleLimit caps how many pull requests the presence check counts.
const CockpitSampleLimit = 50

// CockpitUseCase answers whether an organization has any data worth rendering.
type CockpitUseCase struct {
	gw     warehouse.Gateway
	logger *zap.Logger
}

// NewCockpitUseCase constructs a new use case instance.
func NewCockpitUseCase(gw warehouse.Gateway, logger *zap.Logger) *CockpitUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CockpitUseCase{gw: gw, logger: logger.Named("cockpit_usecase")}
}

// Validate counts up to CockpitSampleLimit pull requests of the organization.
func (uc *CockpitUseCase) Validate(ctx context.Context, organizationID string) (CockpitValidation, error) {
	const op = "cockpit.validate"

	if strings.TrimSpace(organizationID) == "" {
		return CockpitValidation{}, apperr.Validation("Missing required parameters: organizationId")
	}

	sql := fmt.Sprintf(`
        SELECT COUNT(*) AS count
        FROM (
          SELECT 1
          FROM %s AS pr
          WHERE pr.organizationId = @organizationId
          LIMIT %d
        )`, uc.gw.TablePath(warehouse.DatasetMongo, warehouse.TablePullRequests), CockpitSampleLimit)

	rows, err := uc.gw.Query(ctx, op, sql, warehouse.Params{"organizationId": organizationID})
	if err != nil {
		logging.FromContext(ctx, uc.logger, op).Error("warehouse query failed",
			zap.String("organization_id", organizationID),
			zap.Error(err),
		)
		return CockpitValidation{}, apperr.Upstream(op, err)
	}

	var count int64
	if len(rows) > 0 {
		count = rows[0].Int64("count")
	}
	return CockpitValidation{HasData: count > 0, PullRequestsCount: count}, nil
}
