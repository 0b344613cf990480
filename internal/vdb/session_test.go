package vdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	closed int
}

func (d *fakeDB) Tests() ([]Test, error)             { return nil, nil }
func (d *fakeDB) MergeTests(a, b Test) (Test, error) { return a, nil }
func (d *fakeDB) EmptyTest() Test                    { return nil }
func (d *fakeDB) Top() Instance                      { return nil }
func (d *fakeDB) Close() error {
	d.closed++
	return nil
}

type fakeDriver struct {
	inits, ends int
	opened      []*fakeDB
	initErr     error
}

func (d *fakeDriver) Init() error {
	d.inits++
	return d.initErr
}

func (d *fakeDriver) End() error {
	d.ends++
	return nil
}

func (d *fakeDriver) Open(path string) (Database, error) {
	if path == "bad.vdb" {
		return nil, errors.New("corrupt database")
	}
	db := &fakeDB{}
	d.opened = append(d.opened, db)
	return db, nil
}

func TestFactory_Lifecycle(t *testing.T) {
	t.Run("should init once and end after the last close", func(t *testing.T) {
		driver := &fakeDriver{}
		factory := NewFactory(driver)

		s1, err := factory.Open("a.vdb")
		require.NoError(t, err)
		s2, err := factory.Open("b.vdb")
		require.NoError(t, err)

		assert.Equal(t, 1, driver.inits)
		assert.Equal(t, 2, factory.OpenCount())

		require.NoError(t, s1.Close())
		assert.Equal(t, 0, driver.ends)

		require.NoError(t, s2.Close())
		assert.Equal(t, 1, driver.ends)
		assert.Equal(t, 0, factory.OpenCount())

		for _, db := range driver.opened {
			assert.Equal(t, 1, db.closed)
		}
	})

	t.Run("should init again after a full teardown", func(t *testing.T) {
		driver := &fakeDriver{}
		factory := NewFactory(driver)

		s, err := factory.Open("a.vdb")
		require.NoError(t, err)
		require.NoError(t, s.Close())

		s, err = factory.Open("a.vdb")
		require.NoError(t, err)
		require.NoError(t, s.Close())

		assert.Equal(t, 2, driver.inits)
		assert.Equal(t, 2, driver.ends)
	})

	t.Run("should report open failure without leaking native state", func(t *testing.T) {
		driver := &fakeDriver{}
		factory := NewFactory(driver)

		s, err := factory.Open("bad.vdb")
		assert.Nil(t, s)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDatabaseOpen)
		assert.Contains(t, err.Error(), "bad.vdb")
		assert.Equal(t, 1, driver.inits)
		assert.Equal(t, 1, driver.ends)
		assert.Equal(t, 0, factory.OpenCount())
	})

	t.Run("should keep native state when another session is open", func(t *testing.T) {
		driver := &fakeDriver{}
		factory := NewFactory(driver)

		good, err := factory.Open("a.vdb")
		require.NoError(t, err)

		_, err = factory.Open("bad.vdb")
		require.ErrorIs(t, err, ErrDatabaseOpen)
		assert.Equal(t, 0, driver.ends)

		require.NoError(t, good.Close())
		assert.Equal(t, 1, driver.ends)
	})

	t.Run("should fail open when native init fails", func(t *testing.T) {
		driver := &fakeDriver{initErr: errors.New("no license")}
		factory := NewFactory(driver)

		_, err := factory.Open("a.vdb")
		require.ErrorIs(t, err, ErrDatabaseOpen)
		assert.Empty(t, driver.opened)
	})
}

func TestSession_Close(t *testing.T) {
	driver := &fakeDriver{}
	factory := NewFactory(driver)

	s, err := factory.Open("a.vdb")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Close()
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, 1, driver.ends)
	assert.Equal(t, 1, driver.opened[0].closed)

	err = s.Use(func(Database) error { return nil })
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_Use(t *testing.T) {
	driver := &fakeDriver{}
	factory := NewFactory(driver)

	s, err := factory.Open("a.vdb")
	require.NoError(t, err)
	defer s.Close()

	var seen Database
	require.NoError(t, s.Use(func(db Database) error {
		seen = db
		return nil
	}))
	assert.Same(t, driver.opened[0], seen)
	assert.Equal(t, "a.vdb", s.Path())

	want := errors.New("boom")
	assert.Equal(t, want, s.Use(func(Database) error { return want }))
}
