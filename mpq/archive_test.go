// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package mpq_test

import (
	"bytes"
	"encoding/binary"
	"io/ioutil"
	"runtime"

	"github.com/danjacques/gos2replay/mpq"
	"github.com/danjacques/gos2replay/mpq/mpqtest"
	"github.com/danjacques/gos2replay/support/errkind"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Archive", func() {
	tenBytes := []byte("0123456789")

	open := func(b *mpqtest.Builder) (*mpq.Archive, error) {
		return mpq.NewArchive(bytes.NewReader(b.Build()), nil)
	}

	mustOpen := func(b *mpqtest.Builder) *mpq.Archive {
		a, err := open(b)
		Expect(err).ToNot(HaveOccurred())
		return a
	}

	It("reads a stored single-unit file", func() {
		a := mustOpen(&mpqtest.Builder{
			Files: []mpqtest.File{{Name: "test", Data: tenBytes}},
		})
		defer a.Close()

		data, err := a.ReadFile("test", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal(tenBytes))
	})

	It("resolves names case-insensitively", func() {
		a := mustOpen(&mpqtest.Builder{
			Files: []mpqtest.File{{Name: "replay.details", Data: tenBytes}},
		})

		data, err := a.ReadFile("REPLAY.DETAILS", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal(tenBytes))
	})

	It("returns an empty result for a file with no archived bytes", func() {
		a := mustOpen(&mpqtest.Builder{
			Files: []mpqtest.File{{Name: "empty"}},
		})

		be, ok := a.Resolve("empty")
		Expect(ok).To(BeTrue())
		Expect(be.ArchivedSize).To(BeZero())
		Expect(be.Flags.Has(mpq.FileExists)).To(BeTrue())

		data, err := a.ReadFile("empty", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).ToNot(BeNil())
		Expect(data).To(BeEmpty())
	})

	It("returns an empty result for a block that is not marked as existing", func() {
		a := mustOpen(&mpqtest.Builder{
			Files: []mpqtest.File{{Name: "deleted", Data: tenBytes, Flags: mpq.DeleteMarker | mpq.SingleUnit}},
		})

		data, err := a.ReadFile("deleted", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(BeEmpty())
	})

	It("reports files that are not present", func() {
		a := mustOpen(&mpqtest.Builder{
			Files: []mpqtest.File{{Name: "test", Data: tenBytes}},
		})

		_, ok := a.Resolve("missing")
		Expect(ok).To(BeFalse())

		_, err := a.ReadFile("missing", false)
		Expect(err).To(MatchError(mpq.ErrFileNotFound))
	})

	It("resolves distinct names to distinct blocks", func() {
		a := mustOpen(&mpqtest.Builder{
			Files: []mpqtest.File{
				{Name: "replay.details", Data: []byte("details")},
				{Name: "replay.initData", Data: []byte("init data")},
				{Name: "replay.tracker.events", Data: []byte("tracker")},
			},
		})
		Expect(a.BlockTable()).To(HaveLen(3))

		for name, expected := range map[string]string{
			"replay.details":        "details",
			"replay.initData":       "init data",
			"replay.tracker.events": "tracker",
		} {
			data, err := a.ReadFile(name, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(Equal(expected))
		}
	})

	It("skips a hash entry whose block index is out of range", func() {
		a := mustOpen(&mpqtest.Builder{
			Files: []mpqtest.File{{Name: "test", Data: tenBytes}},
		})

		// Locate the entry and point it past the block table.
		for i := range a.HashTable() {
			he := &a.HashTable()[i]
			if he.HashA == mpq.Hash("test", mpq.HashA) {
				he.BlockIndex = 7
			}
		}
		_, ok := a.Resolve("test")
		Expect(ok).To(BeFalse())
	})

	It("reads an archive wrapped in a user data header", func() {
		content := []byte("user data content")
		a := mustOpen(&mpqtest.Builder{
			UserData: content,
			Files:    []mpqtest.File{{Name: "test", Data: tenBytes}},
		})

		Expect(a.UserData()).ToNot(BeNil())
		Expect(a.UserData().Content).To(Equal(content))
		Expect(a.Header().Offset).To(Equal(int64(16 + len(content))))

		data, err := a.ReadFile("test", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal(tenBytes))
	})

	It("reads a format version 1 archive", func() {
		a := mustOpen(&mpqtest.Builder{
			FormatVersion: 1,
			Files:         []mpqtest.File{{Name: "test", Data: tenBytes}},
		})

		Expect(a.Header().Extension).ToNot(BeNil())
		Expect(a.Header().HeaderSize).To(Equal(uint32(44)))
		Expect(a.UserData()).To(BeNil())

		data, err := a.ReadFile("test", false)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal(tenBytes))
	})

	Context("compressed files", func() {
		payload := bytes.Repeat([]byte("compressible "), 64)

		It("expands zlib data", func() {
			a := mustOpen(&mpqtest.Builder{
				Files: []mpqtest.File{{Name: "z", Data: payload, Zlib: true}},
			})

			be, _ := a.Resolve("z")
			Expect(be.ArchivedSize).To(BeNumerically("<", be.Size))

			data, err := a.ReadFile("z", false)
			Expect(err).ToNot(HaveOccurred())
			Expect(data).To(Equal(payload))
		})

		It("strips the method byte of stored data when forced", func() {
			a := mustOpen(&mpqtest.Builder{
				Files: []mpqtest.File{{
					Name:    "s",
					Data:    tenBytes,
					Payload: append([]byte{byte(mpq.CompressionNone)}, tenBytes...),
					Flags:   mpq.FileExists | mpq.SingleUnit | mpq.Compressed,
				}},
			})

			data, err := a.ReadFile("s", false)
			Expect(err).ToNot(HaveOccurred())
			Expect(data).To(HaveLen(11))

			data, err = a.ReadFile("s", true)
			Expect(err).ToNot(HaveOccurred())
			Expect(data).To(Equal(tenBytes))
		})

		It("rejects an unknown method byte", func() {
			a := mustOpen(&mpqtest.Builder{
				Files: []mpqtest.File{{
					Name:    "x",
					Data:    tenBytes,
					Payload: []byte{0x08, 1, 2, 3},
					Flags:   mpq.FileExists | mpq.SingleUnit | mpq.Compressed,
				}},
			})

			_, err := a.ReadFile("x", false)
			Expect(errkind.Of(err)).To(Equal(errkind.UnsupportedCompression))
		})

		It("expands bzip2 data", func() {
			stream, err := ioutil.ReadFile("testdata/hello.bz2")
			Expect(err).ToNot(HaveOccurred())
			text := []byte("hello bzip2 world, hello again")

			a := mustOpen(&mpqtest.Builder{
				Files: []mpqtest.File{{
					Name:    "b",
					Data:    text,
					Payload: append([]byte{byte(mpq.CompressionBzip2)}, stream...),
					Flags:   mpq.FileExists | mpq.SingleUnit | mpq.Compressed,
				}},
			})

			data, err := a.ReadFile("b", true)
			Expect(err).ToNot(HaveOccurred())
			Expect(data).To(Equal(text))
		})

		It("rejects zlib data that expands long", func() {
			a := mustOpen(&mpqtest.Builder{
				Files: []mpqtest.File{{
					Name:    "long",
					Data:    payload,
					Payload: append([]byte{byte(mpq.CompressionZlib)}, mpqtest.Zlib(append(append([]byte{}, payload...), '!'))...),
					Flags:   mpq.FileExists | mpq.SingleUnit | mpq.Compressed,
				}},
			})

			_, err := a.ReadFile("long", false)
			Expect(errkind.Of(err)).To(Equal(errkind.Corrupted))
		})

		It("rejects zlib data that expands short", func() {
			a := mustOpen(&mpqtest.Builder{
				Files: []mpqtest.File{{
					Name:    "short",
					Data:    payload,
					Payload: append([]byte{byte(mpq.CompressionZlib)}, mpqtest.Zlib(payload[:10])...),
					Flags:   mpq.FileExists | mpq.SingleUnit | mpq.Compressed,
				}},
			})

			_, err := a.ReadFile("short", false)
			Expect(errkind.Of(err)).To(Equal(errkind.Corrupted))
		})
	})

	Context("unsupported layouts", func() {
		It("rejects encrypted files", func() {
			a := mustOpen(&mpqtest.Builder{
				Files: []mpqtest.File{{Name: "e", Data: tenBytes, Flags: mpq.FileExists | mpq.SingleUnit | mpq.Encrypted}},
			})

			_, err := a.ReadFile("e", false)
			Expect(errkind.Of(err)).To(Equal(errkind.UnsupportedLayout))
		})

		It("rejects files stored in sectors", func() {
			a := mustOpen(&mpqtest.Builder{
				Files: []mpqtest.File{{Name: "s", Data: tenBytes, Flags: mpq.FileExists}},
			})

			_, err := a.ReadFile("s", false)
			Expect(errkind.Of(err)).To(Equal(errkind.UnsupportedLayout))
		})
	})

	Context("malformed archives", func() {
		It("rejects an unknown magic", func() {
			data := (&mpqtest.Builder{}).Build()
			data[3] = 0x1C

			_, err := mpq.NewArchive(bytes.NewReader(data), nil)
			Expect(errkind.Of(err)).To(Equal(errkind.Corrupted))
		})

		It("rejects an empty file", func() {
			_, err := mpq.NewArchive(bytes.NewReader(nil), nil)
			Expect(errkind.Of(err)).To(Equal(errkind.Truncated))
		})

		It("rejects truncated tables", func() {
			data := (&mpqtest.Builder{
				Files: []mpqtest.File{{Name: "test", Data: tenBytes}},
			}).Build()

			_, err := mpq.NewArchive(bytes.NewReader(data[:len(data)-4]), nil)
			Expect(errkind.Of(err)).To(Equal(errkind.Truncated))
		})

		It("rejects user data content larger than the archive", func() {
			data := append([]byte{}, mpq.UserDataMagic[:]...)
			data = binary.LittleEndian.AppendUint32(data, 0)
			data = binary.LittleEndian.AppendUint32(data, 16)
			data = binary.LittleEndian.AppendUint32(data, 0xFFFFFFF0)

			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, err := mpq.NewArchive(bytes.NewReader(data), nil)
			runtime.ReadMemStats(&after)

			Expect(errkind.Of(err)).To(Equal(errkind.Truncated))
			Expect(after.TotalAlloc - before.TotalAlloc).To(BeNumerically("<", 16<<20))
		})

		It("rejects an archive header offset past the end of the archive", func() {
			data := (&mpqtest.Builder{
				UserData: []byte("header"),
				Files:    []mpqtest.File{{Name: "test", Data: tenBytes}},
			}).Build()
			binary.LittleEndian.PutUint32(data[8:], uint32(len(data)+100))

			_, err := mpq.NewArchive(bytes.NewReader(data), nil)
			Expect(errkind.Of(err)).To(Equal(errkind.Truncated))
		})

		It("rejects a table larger than the archive", func() {
			data := (&mpqtest.Builder{
				Files: []mpqtest.File{{Name: "test", Data: tenBytes}},
			}).Build()
			// hash_table_entries
			binary.LittleEndian.PutUint32(data[24:], 0x0FFFFFFF)

			_, err := mpq.NewArchive(bytes.NewReader(data), nil)
			Expect(errkind.Of(err)).To(Equal(errkind.Truncated))
		})

		It("rejects a file larger than the archive", func() {
			data := (&mpqtest.Builder{
				Files: []mpqtest.File{{Name: "test", Data: tenBytes}},
			}).Build()

			a, err := mpq.NewArchive(bytes.NewReader(data), nil)
			Expect(err).ToNot(HaveOccurred())
			for i := range a.BlockTable() {
				a.BlockTable()[i].ArchivedSize = 0xFFFFFFF0
			}

			_, err = a.ReadFile("test", false)
			Expect(errkind.Of(err)).To(Equal(errkind.Truncated))
		})

		It("rejects a file whose data lies past the end of the archive", func() {
			data := (&mpqtest.Builder{
				Files: []mpqtest.File{{Name: "test", Data: tenBytes}},
			}).Build()

			a, err := mpq.NewArchive(bytes.NewReader(data), nil)
			Expect(err).ToNot(HaveOccurred())
			for i := range a.BlockTable() {
				a.BlockTable()[i].Offset = uint32(len(data))
			}

			_, err = a.ReadFile("test", false)
			Expect(errkind.Of(err)).To(Equal(errkind.Truncated))
		})
	})

	It("lists files from the list file", func() {
		a := mustOpen(&mpqtest.Builder{
			Files: []mpqtest.File{
				{Name: "test", Data: tenBytes},
				{Name: mpq.ListFileName, Data: []byte("test\r\n(listfile)\n\n")},
			},
		})

		files, err := a.Files()
		Expect(err).ToNot(HaveOccurred())
		Expect(files).To(Equal([]string{"test", "(listfile)"}))
	})
})
