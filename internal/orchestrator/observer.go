package orchestrator

import (
	"context"

	"github.com/shaiso/stepflow/internal/domain"
)

// Observer получает уведомления о ходе выполнения run.
//
// Вызовы синхронные и идут из горутины run: observer не должен
// блокироваться надолго. Переданная запись — снимок run, общий для всех
// observer'ов: её можно читать и хранить, но не изменять.
type Observer interface {
	RunStarted(ctx context.Context, rec *domain.RunRecord)
	StepFinished(ctx context.Context, rec *domain.RunRecord, step domain.StepResult)
	RunFinished(ctx context.Context, rec *domain.RunRecord)
}

// observers рассылает уведомления нескольким Observer.
type observers []Observer

func (o observers) runStarted(ctx context.Context, rec *domain.RunRecord) {
	for _, obs := range o {
		obs.RunStarted(ctx, rec)
	}
}

func (o observers) stepFinished(ctx context.Context, rec *domain.RunRecord, step domain.StepResult) {
	for _, obs := range o {
		obs.StepFinished(ctx, rec, step)
	}
}

func (o observers) runFinished(ctx context.Context, rec *domain.RunRecord) {
	for _, obs := range o {
		obs.RunFinished(ctx, rec)
	}
}
