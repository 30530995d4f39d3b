package validation

import (
	"fmt"
	"regexp"
)

// BoardIDPattern определяет допустимый формат идентификатора доски
// Латинские буквы (a-z, A-Z), цифры (0-9), дефис (-) и нижнее подчеркивание (_)
// Длина: 1-64 символа
var BoardIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const (
	// MaxBoardIDLen максимальная длина идентификатора доски
	MaxBoardIDLen = 64
	// MaxObjectIDLen максимальная длина идентификатора объекта
	MaxObjectIDLen = 128
)

// ValidateBoardID проверяет, что идентификатор доски пригоден для URL и ключей хранилища
func ValidateBoardID(boardID string) error {
	if boardID == "" {
		return fmt.Errorf("board id cannot be empty")
	}

	if len(boardID) > MaxBoardIDLen {
		return fmt.Errorf("board id must not exceed %d characters", MaxBoardIDLen)
	}

	if !BoardIDPattern.MatchString(boardID) {
		return fmt.Errorf("board id can only contain letters (a-z, A-Z), numbers (0-9), hyphens (-) and underscores (_)")
	}

	return nil
}

// ValidateObjectID проверяет идентификатор объекта доски
func ValidateObjectID(objectID string) error {
	if objectID == "" {
		return fmt.Errorf("object id cannot be empty")
	}

	if len(objectID) > MaxObjectIDLen {
		return fmt.Errorf("object id must not exceed %d characters", MaxObjectIDLen)
	}

	return nil
}
