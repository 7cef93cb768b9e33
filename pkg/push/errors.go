package push

import "errors"

var (
	ErrContentAvailable   = errors.New("cannot add badge or sound to a push with content-available")
	ErrBadgeAlreadySet    = errors.New("badge already exists, you can not set multiple badges")
	ErrSoundAlreadySet    = errors.New("sound already exists, you can not set multiple sounds")
	ErrCategoryAlreadySet = errors.New("category already exists, you can not set multiple categories")
	ErrTokenAlreadySet    = errors.New("notification already has a token")
	ErrVoipTokenRequired  = errors.New("voip pushes must use a voip token")
	ErrVoipTokenNotVoip   = errors.New("voip token may only be used with voip pushes")
	ErrPriorityRange      = errors.New("priority must be between 0 and 10")
	ErrEmptyValue         = errors.New("value cannot be empty or whitespace")
	ErrDuplicateProperty  = errors.New("custom property already exists")
	ErrReservedProperty   = errors.New("custom property key is reserved")
	ErrUnknownType        = errors.New("unknown push type")
)
