package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// RunTests runs tests that confirm a key/value store implementation behaves
// correctly.
func RunTests(
	t *testing.T,
	newStore func(t *testing.T) Store,
) {
	t.Run("type Store", func(t *testing.T) {
		t.Run("func Open()", func(t *testing.T) {
			t.Run("it isolates keyspaces with similar names", func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				store := newStore(t)
				prefix := uuid.NewString()

				names := []string{
					prefix + "foobar",
					prefix + "foo.bar",
					prefix + "foo/bar",
					prefix + "foo_bar",
					prefix + "FOOBAR",
				}

				for i, name := range names {
					set(ctx, t, store, name, "<key>", fmt.Sprintf("<value-%d>", i))
				}

				for i, name := range names {
					expect := fmt.Sprintf("<value-%d>", i)
					actual := get(ctx, t, store, name, "<key>")

					if expect != actual {
						t.Fatalf(
							"unexpected value in keyspace %q, want %q, got %q",
							name,
							expect,
							actual,
						)
					}
				}
			})

			t.Run("allows keyspaces to be opened multiple times", func(t *testing.T) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				store := newStore(t)
				name := uuid.NewString()

				ks1, err := store.Open(ctx, name)
				if err != nil {
					t.Fatal(err)
				}
				defer ks1.Close()

				ks2, err := store.Open(ctx, name)
				if err != nil {
					t.Fatal(err)
				}
				defer ks2.Close()

				expect := []byte("<value>")
				if err := ks1.Set(ctx, []byte("<key>"), expect); err != nil {
					t.Fatal(err)
				}

				actual, err := ks2.Get(ctx, []byte("<key>"))
				if err != nil {
					t.Fatal(err)
				}

				if !bytes.Equal(expect, actual) {
					t.Fatalf(
						"unexpected value, want %q, got %q",
						string(expect),
						string(actual),
					)
				}
			})
		})
	})

	t.Run("type Keyspace", func(t *testing.T) {
		t.Run("func Get()", func(t *testing.T) {
			t.Run("it returns an empty value if the key doesn't exist", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				v, err := ks.Get(ctx, []byte("<key>"))
				if err != nil {
					t.Fatal(err)
				}
				if len(v) != 0 {
					t.Fatal("expected zero-length value")
				}
			})

			t.Run("it returns an empty value if the key has been deleted", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				k := []byte("<key>")

				if err := ks.Set(ctx, k, []byte("<value>")); err != nil {
					t.Fatal(err)
				}

				if err := ks.Set(ctx, k, nil); err != nil {
					t.Fatal(err)
				}

				v, err := ks.Get(ctx, k)
				if err != nil {
					t.Fatal(err)
				}
				if len(v) != 0 {
					t.Fatal("expected zero-length value")
				}
			})

			t.Run("it returns the latest value if the key has been overwritten", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				k := []byte("<key>")

				for _, v := range []string{"<first>", "<second>"} {
					if err := ks.Set(ctx, k, []byte(v)); err != nil {
						t.Fatal(err)
					}
				}

				v, err := ks.Get(ctx, k)
				if err != nil {
					t.Fatal(err)
				}

				if string(v) != "<second>" {
					t.Fatalf("unexpected value, want %q, got %q", "<second>", string(v))
				}
			})

			t.Run("it returns the value if the key exists", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				for i := 0; i < 5; i++ {
					k := []byte(fmt.Sprintf("<key-%d>", i))
					v := []byte(fmt.Sprintf("<value-%d>", i))

					if err := ks.Set(ctx, k, v); err != nil {
						t.Fatal(err)
					}
				}

				for i := 0; i < 5; i++ {
					k := []byte(fmt.Sprintf("<key-%d>", i))
					expect := []byte(fmt.Sprintf("<value-%d>", i))

					actual, err := ks.Get(ctx, k)
					if err != nil {
						t.Fatal(err)
					}

					if !bytes.Equal(expect, actual) {
						t.Fatalf(
							"unexpected value, want %q, got %q",
							string(expect),
							string(actual),
						)
					}
				}
			})
		})

		t.Run("func Has()", func(t *testing.T) {
			t.Run("it returns false if the key doesn't exist", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				ok, err := ks.Has(ctx, []byte("<key>"))
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Fatal("expected ok to be false")
				}
			})

			t.Run("it returns true if the key exists", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				k := []byte("<key>")

				if err := ks.Set(ctx, k, []byte("<value>")); err != nil {
					t.Fatal(err)
				}

				ok, err := ks.Has(ctx, k)
				if err != nil {
					t.Fatal(err)
				}
				if !ok {
					t.Fatal("expected ok to be true")
				}
			})

			t.Run("it returns false if the key has been deleted", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				k := []byte("<key>")

				if err := ks.Set(ctx, k, []byte("<value>")); err != nil {
					t.Fatal(err)
				}

				if err := ks.Set(ctx, k, nil); err != nil {
					t.Fatal(err)
				}

				ok, err := ks.Has(ctx, k)
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Fatal("expected ok to be false")
				}
			})
		})

		t.Run("func Range()", func(t *testing.T) {
			t.Run("calls the function for each key in the keyspace", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				expect := map[string]string{}

				for n := 0; n < 50; n++ {
					k := fmt.Sprintf("<key-%d>", n)
					v := fmt.Sprintf("<value-%d>", n)
					if err := ks.Set(ctx, []byte(k), []byte(v)); err != nil {
						t.Fatal(err)
					}

					expect[k] = v
				}

				actual := map[string]string{}

				if err := ks.Range(
					ctx,
					func(ctx context.Context, k, v []byte) (bool, error) {
						actual[string(k)] = string(v)
						return true, nil
					},
				); err != nil {
					t.Fatal(err)
				}

				if diff := cmp.Diff(expect, actual); diff != "" {
					t.Fatal(diff)
				}
			})

			t.Run("it stops iterating if the function returns false", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				for n := 0; n < 2; n++ {
					k := fmt.Sprintf("<key-%d>", n)
					v := fmt.Sprintf("<value-%d>", n)
					if err := ks.Set(ctx, []byte(k), []byte(v)); err != nil {
						t.Fatal(err)
					}
				}

				called := false
				if err := ks.Range(
					ctx,
					func(ctx context.Context, k, v []byte) (bool, error) {
						if called {
							return false, errors.New("unexpected call")
						}

						called = true
						return false, nil
					},
				); err != nil {
					t.Fatal(err)
				}
			})

			t.Run("it propagates errors returned by the function", func(t *testing.T) {
				t.Parallel()

				ctx, ks := setup(t, newStore)

				if err := ks.Set(ctx, []byte("<key>"), []byte("<value>")); err != nil {
					t.Fatal(err)
				}

				want := errors.New("<error>")
				got := ks.Range(
					ctx,
					func(ctx context.Context, k, v []byte) (bool, error) {
						return true, want
					},
				)

				if !errors.Is(got, want) {
					t.Fatalf("unexpected error, want %q, got %q", want, got)
				}
			})
		})
	})

	t.Run("func Truncate()", func(t *testing.T) {
		t.Run("it removes every key", func(t *testing.T) {
			t.Parallel()

			ctx, ks := setup(t, newStore)

			for n := 0; n < 10; n++ {
				k := fmt.Sprintf("<key-%d>", n)
				if err := ks.Set(ctx, []byte(k), []byte("<value>")); err != nil {
					t.Fatal(err)
				}
			}

			if err := Truncate(ctx, ks); err != nil {
				t.Fatal(err)
			}

			keys, err := Keys(ctx, ks)
			if err != nil {
				t.Fatal(err)
			}

			if len(keys) != 0 {
				t.Fatalf("expected keyspace to be empty, found %d key(s)", len(keys))
			}
		})
	})
}

func setup(
	t *testing.T,
	newStore func(t *testing.T) Store,
) (context.Context, Keyspace) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	store := newStore(t)

	ks, err := store.Open(ctx, uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		if err := ks.Close(); err != nil {
			t.Error(err)
		}
	})

	return ctx, ks
}

func set(
	ctx context.Context,
	t *testing.T,
	store Store,
	name, k, v string,
) {
	t.Helper()

	ks, err := store.Open(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	if err := ks.Set(ctx, []byte(k), []byte(v)); err != nil {
		t.Fatal(err)
	}
}

func get(
	ctx context.Context,
	t *testing.T,
	store Store,
	name, k string,
) string {
	t.Helper()

	ks, err := store.Open(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	defer ks.Close()

	v, err := ks.Get(ctx, []byte(k))
	if err != nil {
		t.Fatal(err)
	}

	return string(v)
}
