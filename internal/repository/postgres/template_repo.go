package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/template"
)

var _ template.Repo = (*TemplateRepo)(nil)

type TemplateRepo struct{ db *DB }

func NewTemplateRepo(db *DB) *TemplateRepo { return &TemplateRepo{db: db} }

const tplCols = `id, notification_type, channel, subject, body, html, variables, active, updated_at`

const (
	qTplGet = `
SELECT ` + tplCols + `
FROM notification_templates
WHERE notification_type = $1 AND channel = $2;`

	qTplList = `
SELECT ` + tplCols + `
FROM notification_templates
ORDER BY notification_type, channel;`

	qTplUpsert = `
INSERT INTO notification_templates (notification_type, channel, subject, body, html, variables, active)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (notification_type, channel) DO UPDATE SET
    subject    = excluded.subject,
    body       = excluded.body,
    html       = excluded.html,
    variables  = excluded.variables,
    active     = excluded.active,
    updated_at = now()
RETURNING id, updated_at;`
)

func (r *TemplateRepo) Get(ctx context.Context, t notification.Type, ch notification.Channel) (*template.Template, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanTemplate(r.db.Pool.QueryRow(ctx, qTplGet, string(t), string(ch)))
}

func (r *TemplateRepo) List(ctx context.Context) ([]*template.Template, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qTplList)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []*template.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Upsert(ctx context.Context, tpl *template.Template) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	vars := tpl.Variables
	if vars == nil {
		vars = []string{}
	}
	if err := r.db.Pool.QueryRow(ctx, qTplUpsert,
		string(tpl.Type), string(tpl.Channel), tpl.Subject, tpl.Body, tpl.HTML, vars, tpl.Active,
	).Scan(&tpl.ID, &tpl.UpdatedAt); err != nil {
		return mapPgErr("upsert template", err)
	}
	return nil
}

func scanTemplate(row pgx.Row) (*template.Template, error) {
	var (
		tpl     template.Template
		typ, ch string
	)
	if err := row.Scan(&tpl.ID, &typ, &ch, &tpl.Subject, &tpl.Body, &tpl.HTML, &tpl.Variables, &tpl.Active, &tpl.UpdatedAt); err != nil {
		return nil, mapPgErr("scan template", err)
	}
	tpl.Type = notification.Type(typ)
	tpl.Channel = notification.Channel(ch)
	return &tpl, nil
}
