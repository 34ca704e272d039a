package engine

import "fmt"

// Status é o estado do ciclo de vida de um mercado: Open -> Closed -> Resolved
type Status uint8

const (
	StatusOpen Status = iota
	StatusClosed
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	case StatusResolved:
		return "RESOLVED"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus converte o texto persistido de volta para Status
func ParseStatus(s string) (Status, error) {
	switch s {
	case "OPEN":
		return StatusOpen, nil
	case "CLOSED":
		return StatusClosed, nil
	case "RESOLVED":
		return StatusResolved, nil
	}
	return 0, fmt.Errorf("unknown market status %q", s)
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// checkClose valida a transição Open -> Closed
func (s Status) checkClose() error {
	switch s {
	case StatusOpen:
		return nil
	case StatusClosed:
		return fmt.Errorf("%w: close from %s", ErrInvalidTransition, s)
	case StatusResolved:
		return ErrAlreadyResolved
	}
	return fmt.Errorf("%w: close from %s", ErrInvalidTransition, s)
}

// checkResolve valida a transição Closed -> Resolved (fechar antes é obrigatório)
func (s Status) checkResolve() error {
	switch s {
	case StatusClosed:
		return nil
	case StatusOpen:
		return fmt.Errorf("%w: resolve from %s", ErrInvalidTransition, s)
	case StatusResolved:
		return ErrAlreadyResolved
	}
	return fmt.Errorf("%w: resolve from %s", ErrInvalidTransition, s)
}
