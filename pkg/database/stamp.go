package database

import (
	"Image_Repo_Server/internal/models"
	"time"

	"github.com/google/uuid"
)

// Stamp 在写入前给实体打上新的并发令牌和时间戳。
func Stamp[T models.Entity[T]](e T) T {
	k := e.EntityKeys()
	k.ETag = uuid.NewString()
	k.Timestamp = time.Now().UTC()
	return e.WithKeys(k)
}
