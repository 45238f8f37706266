package configuration

import (
	"errors"
	"strings"
)

var (
	// ErrWrongFormat - версия новой конфигурации не совпадает с текущей
	ErrWrongFormat = errors.New("новая конфигурация имеет неверный формат")
	// ErrMissingPPLParameter - в отредактированном V1 нет PPLParameter
	ErrMissingPPLParameter = errors.New("некорректный JSON: отсутствует поле `PPLParameter`")
	// ErrMissingDetectionParameters - в отредактированном V2 нет detection->parameters
	ErrMissingDetectionParameters = errors.New("некорректный JSON: отсутствует поле `detection->parameters`")
	// ErrInvalidJSON - текст не является JSON объектом
	ErrInvalidJSON = errors.New("некорректный JSON")
	// ErrMissingPath - при разборе не найден вложенный ключ
	ErrMissingPath = errors.New("отсутствует ключ конфигурации")
)

// ValidationError перечисляет поля, не прошедшие проверку
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "некорректные параметры: " + strings.Join(e.Fields, ", ")
}
