package service

import "fmt"

// InputError ошибка входных данных запроса, текст безопасен для клиента
type InputError struct {
	msg string
}

func (e *InputError) Error() string {
	return e.msg
}

// NewInputError создаёт ошибку входных данных
func NewInputError(format string, args ...any) error {
	return &InputError{msg: fmt.Sprintf(format, args...)}
}

// IsInputError проверяет, является ли ошибка ошибкой входных данных
func IsInputError(err error) bool {
	_, ok := err.(*InputError)
	return ok
}

// ExtractionError сбой извлечения векторов голоса: для верификации
// фатален, при регистрации поглощается в отчёте по сэмплу
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("embedding extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
