package models

import "errors"

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrUnitNotFound      = errors.New("delivery unit not found")
	ErrTemplateNotFound  = errors.New("recurring template not found")
	ErrAccountNotFound   = errors.New("social account not found")
	ErrUnitPublished     = errors.New("published delivery units cannot be modified")
	ErrInvalidTransition = errors.New("invalid delivery unit status transition")
	ErrPostDeleted       = errors.New("post has been deleted")
	ErrNoScheduledTime   = errors.New("delivery unit has no scheduled time")
	ErrInvalidPost       = errors.New("invalid post")
	ErrDuplicatePlatform = errors.New("post targets the same platform twice")
)
