package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("forbidden")
	ErrIndeterminate = errors.New("estado remoto indeterminado")
	ErrCorrupted     = errors.New("registro corrupto")
	ErrInvalidMode   = errors.New("transición de modo inválida")
	ErrRateLimited   = errors.New("rate limited")
	ErrAborted       = errors.New("operación abortada")
)

// fallos del flujo de knocks
var (
	ErrAlreadyOwner   = errors.New("ya sos el dueño de la sala")
	ErrBanned         = errors.New("estás baneado de la sala")
	ErrAlreadyGranted = errors.New("ya tenés acceso a la sala")
	ErrDuplicateKnock = errors.New("ya estás en la cola")
	ErrKnockCooldown  = errors.New("knock en cooldown")
	ErrQueueEmpty     = errors.New("cola vacía")
)

// presets
var (
	ErrPresetLimit = errors.New("límite de presets alcanzado")
	ErrPresetName  = errors.New("nombre de preset inválido")
)
