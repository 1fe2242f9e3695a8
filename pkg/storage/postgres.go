package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voidshard/igor/pkg/storage/changes"
	"github.com/voidshard/igor/pkg/structs"
)

// querier is the subset of *pgxpool.Conn and pgx.Tx a store needs; it lets
// every Task/Update/Attribute/Scheduler store run unmodified whether it's
// working against a read-only transaction or a read-write one.
type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Postgres is a Store implementation backed by a single Postgres database.
// Every table keeps the full record as JSONB plus a handful of indexed
// columns the filter/query layer needs to search on; this mirrors the
// way the teacher's own database package favours hand-built SQL over an
// ORM, while avoiding a hand-maintained column per TaskConfig field.
type Postgres struct {
	opts *Options
	pool *pgxpool.Pool

	// writeMu serialises write transactions: at most one is in flight.
	writeMu sync.Mutex
}

// NewPostgres opens a connection pool against opts.URL.
func NewPostgres(opts *Options) (*Postgres, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	url := opts.URL
	url = strings.Replace(url, "$"+opts.UsernameEnvVar, os.Getenv(opts.UsernameEnvVar), 1)
	url = strings.Replace(url, "$"+opts.PasswordEnvVar, os.Getenv(opts.PasswordEnvVar), 1)

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = opts.MaxConns

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{opts: opts, pool: pool}, nil
}

// Close shuts down the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) DoInReadTransaction(fn func(StoreProvider) error) error {
	ctx := context.Background()
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	return fn(newProvider(tx))
}

func (p *Postgres) DoInWriteTransaction(fn func(MutableStoreProvider) error) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	ctx := context.Background()
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(newProvider(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return nil
}

func (p *Postgres) Changes() (changes.Stream, error) {
	ctx := context.Background()
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "listen igor_task_events"); err != nil {
		conn.Release()
		return nil, err
	}
	return &pgChangeStream{ctx: ctx, conn: conn}, nil
}

// provider binds a single querier (bare connection or open transaction)
// to each of the store kinds.
type provider struct {
	q querier
}

func newProvider(q querier) *provider {
	return &provider{q: q}
}

func (p *provider) Tasks() TaskStore           { return &taskStore{q: p.q} }
func (p *provider) Updates() UpdateStore       { return &updateStore{q: p.q} }
func (p *provider) Attributes() AttributeStore { return &attributeStore{q: p.q} }
func (p *provider) Scheduler() SchedulerStore  { return &schedulerStore{q: p.q} }

// --- tasks -----------------------------------------------------------------

type taskStore struct{ q querier }

func (s *taskStore) SaveTasks(tasks []*structs.ScheduledTask) error {
	if len(tasks) == 0 {
		return nil
	}
	ctx := context.Background()
	rows := make([]string, 0, len(tasks))
	args := make([]interface{}, 0, len(tasks)*9)
	for _, t := range tasks {
		doc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		offset := len(args) + 1
		rows = append(rows, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			offset, offset+1, offset+2, offset+3, offset+4, offset+5, offset+6, offset+7, offset+8))
		now := time.Now().Unix()
		args = append(args,
			t.TaskId, t.Status, t.JobKeyOf().Role, t.JobKeyOf().Environment, t.JobKeyOf().Name,
			t.AssignedTask.ShardId, t.AssignedTask.SlaveHost, doc, now,
		)
	}
	sql := fmt.Sprintf(`
INSERT INTO tasks (task_id, status, role, environment, job_name, shard_id, slave_host, doc, updated_at)
VALUES %s
ON CONFLICT (task_id) DO UPDATE SET
	status=EXCLUDED.status, slave_host=EXCLUDED.slave_host, doc=EXCLUDED.doc, updated_at=EXCLUDED.updated_at;`,
		strings.Join(rows, ","))
	_, err := s.q.Exec(ctx, sql, args...)
	return err
}

func (s *taskStore) FetchTasks(q *structs.Query) ([]*structs.ScheduledTask, error) {
	where, args := taskQueryWhere(q)
	// LIMIT NULL is no limit: a zero Limit does not filter.
	var limit interface{}
	if q.Limit > 0 {
		limit = q.Limit
	}
	args = append(args, limit, q.Offset)
	sql := fmt.Sprintf(`SELECT doc FROM tasks %s ORDER BY task_id LIMIT $%d OFFSET $%d;`,
		where, len(args)-1, len(args))

	rows, err := s.q.Query(context.Background(), sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*structs.ScheduledTask{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		t := &structs.ScheduledTask{}
		if err := json.Unmarshal(doc, t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *taskStore) FetchTaskIds(q *structs.Query) ([]string, error) {
	where, args := taskQueryWhere(q)
	var limit interface{}
	if q.Limit > 0 {
		limit = q.Limit
	}
	args = append(args, limit, q.Offset)
	sql := fmt.Sprintf(`SELECT task_id FROM tasks %s ORDER BY task_id LIMIT $%d OFFSET $%d;`,
		where, len(args)-1, len(args))

	rows, err := s.q.Query(context.Background(), sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *taskStore) MutateTasks(q *structs.Query, fn func(*structs.ScheduledTask)) ([]*structs.ScheduledTask, error) {
	current, err := s.FetchTasks(q)
	if err != nil {
		return nil, err
	}
	out := make([]*structs.ScheduledTask, 0, len(current))
	for _, t := range current {
		mutated := t.DeepCopy()
		fn(mutated)
		out = append(out, mutated)
	}
	if err := s.SaveTasks(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *taskStore) DeleteTasks(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	sql := fmt.Sprintf(`DELETE FROM tasks WHERE task_id IN (%s);`, strings.Join(placeholders, ","))
	_, err := s.q.Exec(context.Background(), sql, args...)
	return err
}

func taskQueryWhere(q *structs.Query) (string, []interface{}) {
	and := []string{}
	args := []interface{}{}

	addEq := func(col string, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		and = append(and, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	addEq("role", q.Role)
	addEq("environment", q.Environment)
	addEq("job_name", q.JobName)
	addEq("slave_host", q.SlaveHost)

	if len(q.ShardIds) > 0 {
		placeholders := make([]string, len(q.ShardIds))
		for i, v := range q.ShardIds {
			args = append(args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		and = append(and, fmt.Sprintf("shard_id IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(q.Statuses) > 0 {
		placeholders := make([]string, len(q.Statuses))
		for i, v := range q.Statuses {
			args = append(args, string(v))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		and = append(and, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(q.TaskIds) > 0 {
		placeholders := make([]string, len(q.TaskIds))
		for i, v := range q.TaskIds {
			args = append(args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		and = append(and, fmt.Sprintf("task_id IN (%s)", strings.Join(placeholders, ",")))
	}

	if len(and) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(and, " AND "), args
}

// --- updates -----------------------------------------------------------------

type updateStore struct{ q querier }

func (s *updateStore) FetchJobUpdateConfig(key structs.JobKey) (*structs.JobUpdateConfiguration, error) {
	row := s.q.QueryRow(context.Background(),
		`SELECT doc FROM job_updates WHERE role=$1 AND environment=$2 AND job_name=$3;`,
		key.Role, key.Environment, key.Name)
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	cfg := &structs.JobUpdateConfiguration{}
	if err := json.Unmarshal(doc, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *updateStore) FetchUpdateConfigs(role string) ([]*structs.JobUpdateConfiguration, error) {
	rows, err := s.q.Query(context.Background(), `SELECT doc FROM job_updates WHERE role=$1;`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*structs.JobUpdateConfiguration{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		cfg := &structs.JobUpdateConfiguration{}
		if err := json.Unmarshal(doc, cfg); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func (s *updateStore) FetchUpdatingRoles() ([]string, error) {
	rows, err := s.q.Query(context.Background(), `SELECT DISTINCT role FROM job_updates;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (s *updateStore) SaveJobUpdateConfig(cfg *structs.JobUpdateConfiguration) error {
	doc, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(context.Background(), `
INSERT INTO job_updates (role, environment, job_name, update_token, doc)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (role, environment, job_name) DO UPDATE SET
	update_token=EXCLUDED.update_token, doc=EXCLUDED.doc;`,
		cfg.Role, cfg.Environment, cfg.Name, cfg.UpdateToken, doc)
	return err
}

func (s *updateStore) RemoveShardUpdateConfigs(key structs.JobKey, shardIds []int) error {
	cfg, err := s.FetchJobUpdateConfig(key)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}
	if len(shardIds) == 0 {
		_, err := s.q.Exec(context.Background(),
			`DELETE FROM job_updates WHERE role=$1 AND environment=$2 AND job_name=$3;`,
			key.Role, key.Environment, key.Name)
		return err
	}
	for _, id := range shardIds {
		delete(cfg.Configs, id)
	}
	if len(cfg.Configs) == 0 {
		_, err := s.q.Exec(context.Background(),
			`DELETE FROM job_updates WHERE role=$1 AND environment=$2 AND job_name=$3;`,
			key.Role, key.Environment, key.Name)
		return err
	}
	return s.SaveJobUpdateConfig(cfg)
}

// --- attributes --------------------------------------------------------------

type attributeStore struct{ q querier }

func (s *attributeStore) FetchAttributes(host string) ([]structs.Attribute, error) {
	row := s.q.QueryRow(context.Background(), `SELECT doc FROM host_attributes WHERE host=$1;`, host)
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var attrs []structs.Attribute
	if err := json.Unmarshal(doc, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (s *attributeStore) SaveAttributes(host string, attrs []structs.Attribute) error {
	doc, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(context.Background(), `
INSERT INTO host_attributes (host, doc) VALUES ($1,$2)
ON CONFLICT (host) DO UPDATE SET doc=EXCLUDED.doc;`, host, doc)
	return err
}

// --- scheduler -----------------------------------------------------------------

type schedulerStore struct{ q querier }

func (s *schedulerStore) FetchFrameworkId() (string, error) {
	row := s.q.QueryRow(context.Background(), `SELECT value FROM scheduler_meta WHERE key='framework_id';`)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return v, nil
}

func (s *schedulerStore) SaveFrameworkId(id string) error {
	_, err := s.q.Exec(context.Background(), `
INSERT INTO scheduler_meta (key, value) VALUES ('framework_id', $1)
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value;`, id)
	return err
}
