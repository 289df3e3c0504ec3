package handler

import (
	"context"
	"net/http"

	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/worker/check"
)

// SchedulerService はスケジューラの状態照会と手動スイープ実行のインターフェース。
type SchedulerService interface {
	// Status はスケジューラの現在状態を返す。
	Status() check.Status
	// RunSweepNow はスイープを即時実行する。実行中の場合はfalseを返す。
	RunSweepNow(ctx context.Context) (*model.SweepResult, bool)
}

// SchedulerHandler はスケジューラ管理のHTTPハンドラー。
type SchedulerHandler struct {
	scheduler SchedulerService
}

// NewSchedulerHandler はSchedulerHandlerを生成する。
func NewSchedulerHandler(scheduler SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler}
}

// sweepResponse は手動スイープ実行のAPIレスポンス。
type sweepResponse struct {
	Skipped bool `json:"skipped"`
	Checked int  `json:"checked"`
	Changed int  `json:"changed"`
	Errors  int  `json:"errors"`
}

// GetStatus はスケジューラの現在状態を返す。
// GET /api/scheduler
func (h *SchedulerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// RunSweep はスイープを即時実行する。
// 既にスイープが実行中の場合はskipped=trueを返す。
// POST /api/scheduler
func (h *SchedulerHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	result, ran := h.scheduler.RunSweepNow(r.Context())
	if !ran {
		writeJSON(w, http.StatusConflict, sweepResponse{Skipped: true})
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{
		Checked: result.Checked,
		Changed: result.Changed,
		Errors:  result.Errors,
	})
}
