package kvstore_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ashtonliu88/diff-digest/core/config"
	"github.com/ashtonliu88/diff-digest/internal/kvstore"
)

// storeContract runs the behavior every backend must share.
func storeContract(newStore func() kvstore.Store) {
	var (
		ctx   context.Context
		store kvstore.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	It("reports a missing key without an error", func() {
		value, ok, err := store.Get(ctx, "missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(value).To(BeEmpty())
	})

	It("returns what was set", func() {
		Expect(store.Set(ctx, "k", `{"a":1}`)).To(Succeed())

		value, ok, err := store.Get(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal(`{"a":1}`))
	})

	It("overwrites existing values and keeps other keys", func() {
		Expect(store.Set(ctx, "a", "1")).To(Succeed())
		Expect(store.Set(ctx, "b", "2")).To(Succeed())
		Expect(store.Set(ctx, "a", "3")).To(Succeed())

		a, _, _ := store.Get(ctx, "a")
		b, _, _ := store.Get(ctx, "b")
		Expect(a).To(Equal("3"))
		Expect(b).To(Equal("2"))
	})
}

var _ = Describe("MemoryStore", func() {
	storeContract(func() kvstore.Store { return kvstore.NewMemoryStore() })
})

var _ = Describe("FileStore", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Context("contract", func() {
		storeContract(func() kvstore.Store {
			return kvstore.NewFileStore(filepath.Join(GinkgoT().TempDir(), "nested", "store.json"))
		})
	})

	It("persists across instances", func() {
		path := filepath.Join(dir, "store.json")
		Expect(kvstore.NewFileStore(path).Set(context.Background(), "k", "v")).To(Succeed())

		value, ok, err := kvstore.NewFileStore(path).Get(context.Background(), "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("v"))
	})

	It("reports a corrupt file on read and replaces it on write", func() {
		path := filepath.Join(dir, "store.json")
		Expect(os.WriteFile(path, []byte("not json"), 0o644)).To(Succeed())
		store := kvstore.NewFileStore(path)

		_, _, err := store.Get(context.Background(), "k")
		Expect(err).To(HaveOccurred())

		Expect(store.Set(context.Background(), "k", "v")).To(Succeed())
		value, ok, err := store.Get(context.Background(), "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(value).To(Equal("v"))
	})
})

var _ = Describe("RedisStore", func() {
	url := os.Getenv("REDIS_TEST_URL")

	Context("contract", func() {
		BeforeEach(func() {
			if url == "" {
				Skip("REDIS_TEST_URL not set")
			}
		})

		storeContract(func() kvstore.Store {
			store, err := kvstore.NewRedisStoreFromURL(context.Background(), url)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(store.Close)
			return store
		})
	})

	It("fails fast on an invalid url", func() {
		_, err := kvstore.NewRedisStoreFromURL(context.Background(), "not-a-url")
		Expect(err).To(MatchError(ContainSubstring("parsing redis url")))
	})
})

var _ = Describe("Value", func() {
	var store *kvstore.MemoryStore

	BeforeEach(func() {
		store = kvstore.NewMemoryStore()
	})

	It("returns the fallback until set", func() {
		owner := kvstore.NewValue(store, "repo-owner", "openai")
		Expect(owner.Get(context.Background())).To(Equal("openai"))

		Expect(owner.Set(context.Background(), "acme")).To(Succeed())
		Expect(owner.Get(context.Background())).To(Equal("acme"))

		raw, _, _ := store.Get(context.Background(), "repo-owner")
		Expect(raw).To(Equal(`"acme"`))
	})

	It("falls back on malformed data", func() {
		Expect(store.Set(context.Background(), "page", "oops")).To(Succeed())

		page := kvstore.NewValue(store, "page", 1)
		Expect(page.Get(context.Background())).To(Equal(1))
	})
})

var _ = Describe("Open", func() {
	DescribeTable("selects the backend",
		func(backend config.CacheBackend, expected any) {
			store, closeFn, err := kvstore.Open(context.Background(), config.CacheConfig{
				Backend: backend,
				Path:    filepath.Join(GinkgoT().TempDir(), "store.json"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(closeFn()).To(Succeed())
			Expect(store).To(BeAssignableToTypeOf(expected))
		},
		Entry("file", config.CacheBackendFile, &kvstore.FileStore{}),
		Entry("default", config.CacheBackend(""), &kvstore.FileStore{}),
		Entry("memory", config.CacheBackendMemory, &kvstore.MemoryStore{}),
	)

	It("rejects unknown backends", func() {
		_, closeFn, err := kvstore.Open(context.Background(), config.CacheConfig{Backend: "etcd"})
		Expect(err).To(HaveOccurred())
		Expect(closeFn).NotTo(BeNil())
	})
})
