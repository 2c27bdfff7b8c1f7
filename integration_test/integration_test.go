package integration

import (
	"io/ioutil"
	"net"
	"os/exec"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/onsi/gomega/gexec"

	"github.com/Konopatkin-OV/afina"
	"github.com/Konopatkin-OV/afina/cmd/memcached/config"
	"github.com/Konopatkin-OV/afina/internal/tag"
	"github.com/Konopatkin-OV/afina/internal/util"
	"github.com/Konopatkin-OV/afina/testutil"
)

var _ = Describe("Integration", func() {
	BeforeEach(func() {
		if tag.Race {
			Skip("Integration is not running under race detector.")
		}
	})
	const SessionWaitTime = 3 * time.Second
	var (
		confFile   string
		inConf     config.Config    // App config to run.
		serverConf memcached.Config // Parsed config. Read only.

		session *Session
	)
	BeforeEach(func() {
		ResetTestKeys()
		confFile = testutil.TmpFileName()
		inConf = *config.Default() // Sometimes we want to know defaults.
		inConf.LogLevel = "debug"
		inConf.Port = 0 // The JustBeforeEach below picks a free port.
		serverConf = memcached.Config{} // Will be filled in JBE.
	})

	StartMemcached := func() {
		var err error
		command := exec.Command(MemcachedCLI, "-config", confFile)
		session, err = Start(command, GinkgoWriter, GinkgoWriter)
		Expect(err).ToNot(HaveOccurred(), "%v", err)
		time.Sleep(50 * time.Millisecond) // Wait for the listener to come up.
	}
	JustBeforeEach(func() {
		if !util.IsZero(serverConf) {
			Fail("Test should configure inConf, not serverConfig.")
		}
		var err error
		// Pick a free port up front: the child process is configured with
		// it directly, since the core server has no way to report back
		// the port it ended up bound to.
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		inConf.Port = ln.Addr().(*net.TCPAddr).Port
		inConf.Host = "127.0.0.1"
		ln.Close()

		serverConf, err = config.Parse(inConf)
		Expect(err).NotTo(HaveOccurred())
		err = ioutil.WriteFile(confFile, config.Marshal(&inConf), 0600)
		Expect(err).NotTo(HaveOccurred())
		StartMemcached()
	})
	AfterEach(func() {
		session.Terminate().Wait(SessionWaitTime)
	})

	Context("simple requests", func() {
		var (
			c   *memcache.Client
			err error
		)
		JustBeforeEach(func() {
			c = memcache.New(serverConf.Addr)
		})
		It("get what set", func() {
			set := RandSizeItem()
			err = c.Set(set)
			Expect(err).To(BeNil())
			get, err := c.Get(set.Key)
			Expect(err).To(BeNil())
			ExpectItemsEqual(get, set)
		})

		It("overwrite", func() {
			set := RandSizeItem()
			overwrite := RandSizeItem()
			overwrite.Key = set.Key
			err = c.Set(set)
			Expect(err).To(BeNil())
			err = c.Set(overwrite)
			Expect(err).To(BeNil())

			get, err := c.Get(set.Key)
			Expect(err).To(BeNil())
			ExpectItemsEqual(get, overwrite)
		})

		It("delete", func() {
			set := RandSizeItem()
			err = c.Set(set)
			Expect(err).To(BeNil())

			err = c.Delete(set.Key)
			_, err = c.Get(set.Key)
			Expect(err).To(Equal(memcache.ErrCacheMiss))
		})

		It("multi get", func() {
			var keys []string
			items := map[string]*memcache.Item{}
			for i := 0; i < 10; i++ {
				i := RandSizeItem()
				keys = append(keys, i.Key)
				items[i.Key] = i
				err = c.Set(i)
				Expect(err).To(BeNil())
			}
			gotItems, err := c.GetMulti(keys)
			Expect(err).To(BeNil())
			Expect(len(gotItems)).To(Equal(len(items)))
			for k, v := range gotItems {
				ExpectItemsEqual(v, items[k])
			}
		})

	})

	Context("connection limit", func() {
		BeforeEach(func() {
			inConf.MaxWorkers = 1
		})
		It("rejects a connection beyond max_workers and accepts once one closes", func() {
			a, err := net.Dial("tcp", serverConf.Addr)
			Expect(err).NotTo(HaveOccurred())
			defer a.Close()
			time.Sleep(50 * time.Millisecond)

			b, err := net.Dial("tcp", serverConf.Addr)
			Expect(err).NotTo(HaveOccurred())
			defer b.Close()
			buf := make([]byte, len("Connection limit exceeded\r\n"))
			b.SetReadDeadline(time.Now().Add(SessionWaitTime))
			_, err = b.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(buf)).To(Equal("Connection limit exceeded\r\n"))

			a.Close()
			time.Sleep(50 * time.Millisecond)
			c, err := net.Dial("tcp", serverConf.Addr)
			Expect(err).NotTo(HaveOccurred())
			c.Close()
		})
	})

	Context("load", func() {
		// TODO make configurable load tester.
		// Print RPS, compare with original memcached implementation.
		BeforeEach(func() {
			inConf.LogLevel = "info" // Too large debug output.
		})

		It("serves concurrent clients under sustained load", func() {
			LoadTest(serverConf.Addr)
		})
	})

	It("shuts down gracefully on SIGTERM", func() {
		session.Terminate().Wait(SessionWaitTime)
		Expect(session).To(Exit(0))
	})

	It("shuts down gracefully on SIGINT", func() {
		session.Interrupt().Wait(SessionWaitTime)
		Expect(session).To(Exit(0))
	})
})
