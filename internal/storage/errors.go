package storage

import (
	"fmt"

	"github.com/khoango6804/MLN-chatbot-debate/internal/debate"
)

// ErrNotFound is returned when a requested session or snapshot does not exist.
// It matches debate.ErrSessionNotFound under errors.Is.
var ErrNotFound = fmt.Errorf("storage: %w", debate.ErrSessionNotFound)
