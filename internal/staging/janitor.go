package staging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper descarta entradas expiradas sob demanda.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Janitor executa Sweep periodicamente para que uploads abandonados não
// ocupem memória até a próxima inserção.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	logger   zerolog.Logger

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func NewJanitor(sweeper Sweeper, interval time.Duration, logger zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{sweeper: sweeper, interval: interval, logger: logger, done: make(chan struct{})}
}

// Start inicia o loop. Safe para chamar múltiplas vezes.
func (j *Janitor) Start(parent context.Context) {
	j.once.Do(func() {
		ctx, cancel := context.WithCancel(parent)
		j.cancel = cancel
		go j.runLoop(ctx)
	})
}

// Stop encerra o loop e aguarda a goroutine terminar.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
}

func (j *Janitor) runLoop(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info().Dur("interval", j.interval).Msg("staging: janitor iniciado")

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("staging: janitor encerrado")
			return
		case <-ticker.C:
			if removed := j.sweeper.Sweep(ctx); removed > 0 {
				j.logger.Debug().Int("removed", removed).Msg("staging: entradas expiradas removidas")
			}
		}
	}
}
