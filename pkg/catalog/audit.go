package catalog

import (
	"Image_Repo_Server/internal/models"
	"Image_Repo_Server/pkg/logger"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// newAudit 构造一条审计记录，rowKey 由 (路径, 毫秒时间, 类型, 操作人) 加随机后缀组成，审计表只追加。
func (c *Catalog) newAudit(auditType, actor string, img models.Image, at time.Time) models.Audit {
	if actor == "" {
		actor = models.NoUser
	}
	return models.Audit{
		Keys: models.Keys{
			PartitionKey: c.Audits.PartitionKey(),
			RowKey:       models.AuditRowKey(img.ImagePath, at.UnixMilli(), auditType, actor, uuid.NewString()),
		},
		AuditTime:     at.UTC().Format(time.RFC3339),
		ImageName:     img.ImageName,
		Description:   img.Description,
		Auditor:       actor,
		ImagePath:     img.ImagePath,
		ApprovedBy:    img.ApprovedBy,
		AuditType:     auditType,
		AuditApprover: models.Unapproved,
	}
}

// writeAudit 尽力写入审计记录。失败只记录日志，不影响主操作的结果。
func (c *Catalog) writeAudit(ctx context.Context, audit models.Audit) {
	log := logger.FromContext(ctx)
	created, err := c.Audits.store.Create(ctx, audit)
	if err != nil {
		log.Warn("写入审计记录失败", "type", audit.AuditType, "rowKey", audit.RowKey, "error", err)
		return
	}
	c.Audits.reconcile(ctx, "audit", func() error { return c.Audits.ApplyInsert(created) })
	log.Debug("审计记录已写入", "type", audit.AuditType, "rowKey", audit.RowKey)
}

// auditUpdate 记录一次字段修改，前后值以 JSON 保存。
func (c *Catalog) auditUpdate(ctx context.Context, actor string, before, after models.Image) {
	audit := c.newAudit(models.AuditUpdate, actor, after, c.now())
	audit.PreviousValue = toJSON(before)
	audit.NewValue = toJSON(after)
	c.writeAudit(ctx, audit)
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// AuditLog 按审计类型过滤；auditType 为空时返回全部。
func (c *Catalog) AuditLog(ctx context.Context, auditType string) ([]models.Audit, error) {
	audits, err := c.Audits.Get(ctx)
	if err != nil {
		return nil, storeErr("读取审计表", err)
	}
	if auditType == "" {
		return audits, nil
	}
	var out []models.Audit
	for _, a := range audits {
		if a.AuditType == auditType {
			out = append(out, a)
		}
	}
	return out, nil
}
