package engine

import "errors"

// Erros de domínio: abortam a operação sem nenhuma mutação de estado.
// Falhas de storage não usam estes erros e são propagadas embrulhadas.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNotFound          = errors.New("market not found")
	ErrMarketNotOpen     = errors.New("market is not open")
	ErrMarketExpired     = errors.New("market has expired")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyResolved   = errors.New("market already resolved")
)

// ErrInvalidDuration rejeita durações negativas ou acima de MaxDurationSeconds.
// É validação de entrada do Create, fora da taxonomia acima.
var ErrInvalidDuration = errors.New("invalid duration")

// IsDomain indica se err pertence à taxonomia de erros de domínio
func IsDomain(err error) bool {
	for _, d := range []error{
		ErrInvalidAmount, ErrNotFound, ErrMarketNotOpen, ErrMarketExpired,
		ErrUnauthorized, ErrInvalidTransition, ErrAlreadyResolved,
	} {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}
