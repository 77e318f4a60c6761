package services

import (
	"context"
	"errors"
	"sync"

	"github.com/gmalakar/flouds-vector-go/pkg/vectordb"
)

// fakeDB is an in-memory vectordb.Client recording state changes, with
// per-operation failure injection.
type fakeDB struct {
	mu          sync.Mutex
	databases   map[string]bool
	roles       map[string]bool
	users       map[string]string // user -> password
	grants      map[string]string // user -> role
	collections map[string]int    // name -> dim
	rows        map[string]map[string]vectordb.Row

	denseHits  []vectordb.Hit
	sparseHits []vectordb.Hit

	failOn map[string]error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		databases:   map[string]bool{},
		roles:       map[string]bool{},
		users:       map[string]string{},
		grants:      map[string]string{},
		collections: map[string]int{},
		rows:        map[string]map[string]vectordb.Row{},
		failOn:      map[string]error{},
	}
}

func (f *fakeDB) fail(op string) error {
	if err, ok := f.failOn[op]; ok {
		return err
	}
	return nil
}

func (f *fakeDB) Ping(context.Context) error { return f.fail("ping") }

func (f *fakeDB) HasDatabase(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.databases[name], f.fail("has_database")
}

func (f *fakeDB) CreateDatabase(_ context.Context, name string) error {
	if err := f.fail("create_database"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.databases[name] = true
	return nil
}

func (f *fakeDB) DropDatabase(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.databases, name)
	return nil
}

func (f *fakeDB) HasCollection(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.collections[name]
	return ok, f.fail("has_collection")
}

func (f *fakeDB) DescribeCollection(_ context.Context, name string) (*vectordb.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dim, ok := f.collections[name]
	if !ok {
		return nil, errors.New("collection not found")
	}
	return &vectordb.CollectionInfo{Name: name, Dimension: dim}, nil
}

func (f *fakeDB) CreateCollection(_ context.Context, spec vectordb.CollectionSpec) error {
	if err := f.fail("create_collection"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[spec.Name] = spec.Dimension
	f.rows[spec.Name] = map[string]vectordb.Row{}
	return nil
}

func (f *fakeDB) DropCollection(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, name)
	delete(f.rows, name)
	return nil
}

func (f *fakeDB) Flush(context.Context, string) error { return f.fail("flush") }

func (f *fakeDB) Upsert(_ context.Context, collection string, rows []vectordb.Row) error {
	if err := f.fail("upsert"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[collection] == nil {
		f.rows[collection] = map[string]vectordb.Row{}
	}
	for _, r := range rows {
		f.rows[collection][r[vectordb.FieldID].(string)] = r
	}
	return nil
}

func (f *fakeDB) DeleteByIDs(_ context.Context, collection string, ids []string) error {
	if err := f.fail("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.rows[collection], id)
	}
	return nil
}

func (f *fakeDB) SearchDense(_ context.Context, _ vectordb.DenseSearch) ([]vectordb.Hit, error) {
	return f.denseHits, f.fail("search_dense")
}

func (f *fakeDB) SearchSparse(_ context.Context, _ vectordb.SparseSearch) ([]vectordb.Hit, error) {
	return f.sparseHits, f.fail("search_sparse")
}

func (f *fakeDB) HasRole(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles[name], f.fail("has_role")
}

func (f *fakeDB) CreateRole(_ context.Context, name string) error {
	if err := f.fail("create_role"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[name] = true
	return nil
}

func (f *fakeDB) DropRole(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.roles, name)
	return nil
}

func (f *fakeDB) HasUser(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[name]
	return ok, f.fail("has_user")
}

func (f *fakeDB) CreateUser(_ context.Context, name, password string) error {
	if err := f.fail("create_user"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[name] = password
	return nil
}

func (f *fakeDB) DropUser(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, name)
	return nil
}

func (f *fakeDB) UpdatePassword(_ context.Context, name, oldPassword, newPassword string) error {
	if err := f.fail("update_password"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.users[name]
	if !ok || current != oldPassword {
		return errors.New("auth check failure: old password mismatch")
	}
	f.users[name] = newPassword
	return nil
}

func (f *fakeDB) GrantRole(_ context.Context, user, role string) error {
	if err := f.fail("grant_role"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[user] = role
	return nil
}

func (f *fakeDB) RevokeRole(_ context.Context, user, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.grants, user)
	return nil
}

func (f *fakeDB) GrantPrivilege(context.Context, string, string, string) error {
	return f.fail("grant_privilege")
}

func (f *fakeDB) RevokePrivilege(context.Context, string, string, string) error { return nil }

func (f *fakeDB) Close() error { return nil }

// fakePool wires a single fakeDB behind a real pool.
func fakePool(db *fakeDB) *vectordb.Pool {
	dial := func(context.Context, vectordb.Credentials) (vectordb.Client, error) {
		return db, nil
	}
	return vectordb.NewPool(dial, vectordb.DefaultPoolConfig(), nil, nil)
}

func testCreds() vectordb.Credentials {
	return vectordb.Credentials{URI: "db:19530", User: "root", Secret: "pw", Database: "default"}
}
