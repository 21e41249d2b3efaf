package repo

import "errors"

// Общие ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись с таким run_id уже сохранена.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState — запись нельзя сохранить в текущем состоянии.
	ErrInvalidState = errors.New("invalid state")
)
