// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol_test

import (
	"math"

	. "github.com/danjacques/gos2replay/protocol"
	"github.com/danjacques/gos2replay/protocol/protocoltest"
	"github.com/danjacques/gos2replay/support/errkind"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

var _ = Describe("Decoder", func() {
	var (
		boundsA = Bounds{Offset: 10, Bits: 3}
		boundsB = Bounds{Offset: -5, Bits: 5}
		boundsC = Bounds{Offset: 0, Bits: 12}
	)

	// 0-2: scalars; 3: a struct of them.
	threeInts := Schema{
		{Kind: KindInt, Bounds: boundsA},
		{Kind: KindInt, Bounds: boundsB},
		{Kind: KindInt, Bounds: boundsC},
		{Kind: KindStruct, Fields: []Field{
			{Name: "m_a", Type: 0, Tag: 0},
			{Name: "m_b", Type: 1, Tag: 1},
			{Name: "m_c", Type: 2, Tag: 2},
		}},
	}

	expectKind := func(err error, k errkind.Kind) {
		ExpectWithOffset(1, err).To(HaveOccurred())
		ExpectWithOffset(1, errkind.Of(err)).To(Equal(k))
	}

	Context("bit-packed", func() {
		It("decodes a struct of integers in declared order", func() {
			// m_a: 3 bits (13-10=3), m_b: 5 bits (7+5=12), m_c: 12 bits (0xABC).
			d := NewBitPackedDecoder([]byte{0x63, 0xAB, 0x0C}, threeInts)

			v, err := d.Instance(3)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(
				Entry{Name: "m_a", Value: IntValue(13)},
				Entry{Name: "m_b", Value: IntValue(7)},
				Entry{Name: "m_c", Value: IntValue(0xABC)},
			)))
			Expect(d.UsedBits()).To(Equal(20))
			Expect(d.Done()).To(BeTrue())
		})

		It("agrees with the test writer", func() {
			buf := (&protocoltest.BitWriter{}).
				Int(13, boundsA).
				Int(7, boundsB).
				Int(0xABC, boundsC).
				Build()
			Expect(buf).To(Equal([]byte{0x63, 0xAB, 0x0C}))
		})

		It("keeps the low 64 bits of a wider integer", func() {
			schema := Schema{{Kind: KindInt, Bounds: Bounds{Bits: 72}}}
			buf := (&protocoltest.BitWriter{}).Bits(0x01, 8).Bits(5, 64).Build()

			v, err := NewBitPackedDecoder(buf, schema).Instance(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(IntValue(5)))
		})

		It("decodes arrays, optionals, and nulls", func() {
			schema := Schema{
				{Kind: KindInt, Bounds: Bounds{Bits: 4}},
				{Kind: KindArray, Bounds: Bounds{Bits: 3}, Elem: 0},
				{Kind: KindOptional, Elem: 0},
				{Kind: KindNull},
				{Kind: KindStruct, Fields: []Field{
					{Name: "m_list", Type: 1},
					{Name: "m_present", Type: 2},
					{Name: "m_absent", Type: 2},
					{Name: "m_null", Type: 3},
				}},
			}
			buf := (&protocoltest.BitWriter{}).
				Bits(3, 3).Bits(1, 4).Bits(2, 4).Bits(15, 4).
				Bool(true).Bits(9, 4).
				Bool(false).
				Build()

			v, err := NewBitPackedDecoder(buf, schema).Instance(4)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(
				Entry{Name: "m_list", Value: ArrayValue([]Value{IntValue(1), IntValue(2), IntValue(15)})},
				Entry{Name: "m_present", Value: IntValue(9)},
				Entry{Name: "m_absent", Value: NullValue()},
				Entry{Name: "m_null", Value: NullValue()},
			)))
		})

		It("decodes blobs, FourCCs and bit arrays", func() {
			schema := Schema{
				{Kind: KindBlob, Bounds: Bounds{Bits: 4}},
				{Kind: KindFourCC},
				{Kind: KindBitArray, Bounds: Bounds{Bits: 5}},
			}
			buf := (&protocoltest.BitWriter{}).
				Blob("hi", Bounds{Bits: 4}).
				Bytes([]byte("Humn")).
				Bits(12, 5).Bits(0xFF, 8).Bits(0x3, 4).
				Build()

			d := NewBitPackedDecoder(buf, schema)
			v, err := d.Instance(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(BlobValue("hi")))

			v, err = d.Instance(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(BlobValue("Humn")))

			v, err = d.Instance(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(PairValue(12, 0xFF+0x3)))
		})

		It("decodes a choice as a single-entry struct", func() {
			schema := Schema{
				{Kind: KindInt, Bounds: Bounds{Bits: 6}},
				{Kind: KindInt, Bounds: Bounds{Bits: 14}},
				{Kind: KindChoice, Bounds: Bounds{Bits: 2}, Options: []ChoiceOption{
					{Tag: 0, Name: "m_uint6", Type: 0},
					{Tag: 1, Name: "m_uint14", Type: 1},
				}},
			}
			buf := (&protocoltest.BitWriter{}).Bits(1, 2).Bits(1000, 14).Build()

			v, err := NewBitPackedDecoder(buf, schema).Instance(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(Entry{Name: "m_uint14", Value: IntValue(1000)})))
		})

		It("rejects an unknown choice tag", func() {
			schema := Schema{
				{Kind: KindInt, Bounds: Bounds{Bits: 6}},
				{Kind: KindChoice, Bounds: Bounds{Bits: 2}, Options: []ChoiceOption{
					{Tag: 0, Name: "m_uint6", Type: 0},
				}},
			}
			buf := (&protocoltest.BitWriter{}).Bits(3, 2).Bits(0, 6).Build()

			_, err := NewBitPackedDecoder(buf, schema).Instance(1)
			expectKind(err, errkind.Corrupted)
		})

		It("degrades an invalid UTF-8 blob to an empty string", func() {
			schema := Schema{{Kind: KindBlob, Bounds: Bounds{Bits: 8}}}
			buf := (&protocoltest.BitWriter{}).Bits(2, 8).Bytes([]byte{0xFF, 0xFE}).Build()

			d := NewBitPackedDecoder(buf, schema)
			v, err := d.Instance(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(BlobValue("")))
			Expect(d.Done()).To(BeTrue())
		})

		It("consumes but does not materialize filtered values", func() {
			buf := (&protocoltest.BitWriter{}).
				Int(13, boundsA).Int(7, boundsB).Int(0xABC, boundsC).
				Int(11, boundsA).
				Build()

			d := NewBitPackedDecoder(buf, threeInts)
			v, err := d.InstanceFiltered(3, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(v.Kind).To(Equal(ValueEmpty))
			Expect(d.UsedBits()).To(Equal(20))

			v, err = d.Instance(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(IntValue(11)))
		})

		It("reports truncation", func() {
			_, err := NewBitPackedDecoder([]byte{0x63}, threeInts).Instance(3)
			expectKind(err, errkind.Truncated)
		})

		It("reports a truncated blob", func() {
			schema := Schema{{Kind: KindBlob, Bounds: Bounds{Bits: 8}}}
			_, err := NewBitPackedDecoder([]byte{10, 'a', 'b'}, schema).Instance(0)
			expectKind(err, errkind.Truncated)
		})

		It("rejects an unknown type ID", func() {
			_, err := NewBitPackedDecoder([]byte{0}, threeInts).Instance(4)
			expectKind(err, errkind.Corrupted)

			_, err = NewBitPackedDecoder([]byte{0}, threeInts).Instance(-1)
			expectKind(err, errkind.Corrupted)
		})

		It("limits nesting depth", func() {
			schema := Schema{{Kind: KindOptional, Elem: 0}}
			buf := make([]byte, 64)
			for i := range buf {
				buf[i] = 0xFF
			}

			_, err := NewBitPackedDecoder(buf, schema).Instance(0)
			expectKind(err, errkind.Corrupted)
		})

		It("merges a __parent struct into its enclosing struct", func() {
			schema := Schema{
				{Kind: KindInt, Bounds: Bounds{Bits: 8}},
				{Kind: KindStruct, Fields: []Field{{Name: "m_base", Type: 0}}},
				{Kind: KindStruct, Fields: []Field{
					{Name: "__parent", Type: 1},
					{Name: "m_own", Type: 0},
				}},
			}

			v, err := NewBitPackedDecoder([]byte{1, 2}, schema).Instance(2)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(
				Entry{Name: "m_base", Value: IntValue(1)},
				Entry{Name: "m_own", Value: IntValue(2)},
			)))
		})

		Context("arrays of elements that occupy no bits", func() {
			// 0: null; 1: a constant int; 2: a struct of both;
			// 3-5: arrays of each; 6: a wide-length array of nulls.
			schema := Schema{
				{Kind: KindNull},
				{Kind: KindInt, Bounds: Bounds{Offset: 7, Bits: 0}},
				{Kind: KindStruct, Fields: []Field{
					{Name: "m_null", Type: 0},
					{Name: "m_seven", Type: 1},
				}},
				{Kind: KindArray, Bounds: Bounds{Bits: 12}, Elem: 0},
				{Kind: KindArray, Bounds: Bounds{Bits: 12}, Elem: 1},
				{Kind: KindArray, Bounds: Bounds{Bits: 12}, Elem: 2},
				{Kind: KindArray, Bounds: Bounds{Bits: 24}, Elem: 0},
			}

			lengthBuf := func(n int64, bits uint) []byte {
				return (&protocoltest.BitWriter{}).Int(n, Bounds{Bits: bits}).Build()
			}

			table.DescribeTable("decodes more elements than the buffer has bits",
				func(id TypeID, item Value) {
					v, err := NewBitPackedDecoder(lengthBuf(2000, 12), schema).Instance(id)
					Expect(err).ToNot(HaveOccurred())
					Expect(v.Items).To(HaveLen(2000))
					Expect(v.Items[1999]).To(Equal(item))
				},
				table.Entry("null", TypeID(3), NullValue()),
				table.Entry("zero-width int", TypeID(4), IntValue(7)),
				table.Entry("struct of zero-width fields", TypeID(5), StructValue(
					Entry{Name: "m_null", Value: NullValue()},
					Entry{Name: "m_seven", Value: IntValue(7)},
				)),
			)

			It("still bounds their length", func() {
				_, err := NewBitPackedDecoder(lengthBuf(1<<23, 24), schema).Instance(6)
				expectKind(err, errkind.Corrupted)
			})

			It("bounds arrays of elements that do occupy bits by the buffer", func() {
				schema := Schema{
					{Kind: KindInt, Bounds: Bounds{Bits: 1}},
					{Kind: KindArray, Bounds: Bounds{Bits: 12}, Elem: 0},
				}
				_, err := NewBitPackedDecoder(lengthBuf(2000, 12), schema).Instance(1)
				expectKind(err, errkind.Corrupted)
			})
		})
	})

	Context("versioned", func() {
		newWriter := func() *protocoltest.VersionedWriter { return &protocoltest.VersionedWriter{} }

		It("decodes a struct by field tag", func() {
			buf := newWriter().Struct(3).
				Field(2).Int(0xABC).
				Field(0).Int(13).
				Field(1).Int(-4).
				Build()

			v, err := NewVersionedDecoder(buf, threeInts).Instance(3)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(
				Entry{Name: "m_c", Value: IntValue(0xABC)},
				Entry{Name: "m_a", Value: IntValue(13)},
				Entry{Name: "m_b", Value: IntValue(-4)},
			)))
		})

		It("omits fields that are not on the wire", func() {
			buf := newWriter().Struct(2).
				Field(0).Int(13).
				Field(2).Int(0xABC).
				Build()

			v, err := NewVersionedDecoder(buf, threeInts).Instance(3)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(
				Entry{Name: "m_a", Value: IntValue(13)},
				Entry{Name: "m_c", Value: IntValue(0xABC)},
			)))
			_, ok := v.Field("m_b")
			Expect(ok).To(BeFalse())
		})

		It("skips fields the schema does not know", func() {
			buf := newWriter().Struct(3).
				Field(0).Int(13).
				Field(9).Struct(2).
				Field(0).Array(2).String("x").String("yz").
				Field(1).Optional(true).Int(-70000).
				Field(1).Int(7).
				Build()

			d := NewVersionedDecoder(buf, threeInts)
			v, err := d.Instance(3)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(
				Entry{Name: "m_a", Value: IntValue(13)},
				Entry{Name: "m_b", Value: IntValue(7)},
			)))
			Expect(d.Done()).To(BeTrue())
		})

		// An unknown choice option is skipped, whatever its wire kind, and
		// decoding continues with the following value.
		choiceSchema := Schema{
			{Kind: KindInt},
			{Kind: KindChoice, Options: []ChoiceOption{{Tag: 0, Name: "m_value", Type: 0}}},
		}
		table.DescribeTable("skipping an unknown choice option",
			func(payload func(w *protocoltest.VersionedWriter)) {
				w := newWriter().Choice(5)
				payload(w)
				w.Int(42)

				d := NewVersionedDecoder(w.Build(), choiceSchema)
				v, err := d.Instance(1)
				Expect(err).ToNot(HaveOccurred())
				Expect(v.Kind).To(Equal(ValueEmpty))

				v, err = d.Instance(0)
				Expect(err).ToNot(HaveOccurred())
				Expect(v).To(Equal(IntValue(42)))
				Expect(d.Done()).To(BeTrue())
			},
			table.Entry("array", func(w *protocoltest.VersionedWriter) { w.Array(2).Int(1).Int(-1) }),
			table.Entry("bit blob", func(w *protocoltest.VersionedWriter) { w.BitBlob(12, []byte{0xFF, 0x0F}) }),
			table.Entry("blob", func(w *protocoltest.VersionedWriter) { w.String("skipped") }),
			table.Entry("choice", func(w *protocoltest.VersionedWriter) { w.Choice(3).Int(9) }),
			table.Entry("present optional", func(w *protocoltest.VersionedWriter) { w.Optional(true).String("a") }),
			table.Entry("absent optional", func(w *protocoltest.VersionedWriter) { w.Optional(false) }),
			table.Entry("struct", func(w *protocoltest.VersionedWriter) { w.Struct(2).Field(0).Int(1).Field(4).Bool(true) }),
			table.Entry("u8", func(w *protocoltest.VersionedWriter) { w.Bool(false) }),
			table.Entry("u32", func(w *protocoltest.VersionedWriter) { w.FourCC("Prot") }),
			table.Entry("u64", func(w *protocoltest.VersionedWriter) { w.U64([8]byte{1, 2, 3, 4, 5, 6, 7, 8}) }),
			table.Entry("vint", func(w *protocoltest.VersionedWriter) { w.Int(math.MaxInt64) }),
		)

		It("decodes a known choice option", func() {
			buf := newWriter().Choice(0).Int(-12).Build()

			v, err := NewVersionedDecoder(buf, choiceSchema).Instance(1)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(Entry{Name: "m_value", Value: IntValue(-12)})))
		})

		It("rejects an unknown wire kind while skipping", func() {
			buf := newWriter().Choice(5).Kind(10).Build()
			_, err := NewVersionedDecoder(buf, choiceSchema).Instance(1)
			expectKind(err, errkind.Corrupted)
		})

		It("rejects a wire kind that does not match the schema", func() {
			buf := newWriter().String("not an int").Build()
			_, err := NewVersionedDecoder(buf, threeInts).Instance(0)
			expectKind(err, errkind.Corrupted)
		})

		It("decodes every value kind", func() {
			schema := Schema{
				{Kind: KindInt},
				{Kind: KindBlob},
				{Kind: KindBool},
				{Kind: KindArray, Elem: 0},
				{Kind: KindBitArray},
				{Kind: KindOptional, Elem: 1},
				{Kind: KindFourCC},
				{Kind: KindNull},
				{Kind: KindStruct, Fields: []Field{
					{Name: "m_int", Type: 0, Tag: 0},
					{Name: "m_blob", Type: 1, Tag: 1},
					{Name: "m_bool", Type: 2, Tag: 2},
					{Name: "m_array", Type: 3, Tag: 3},
					{Name: "m_bits", Type: 4, Tag: 4},
					{Name: "m_opt", Type: 5, Tag: 5},
					{Name: "m_fourcc", Type: 6, Tag: 6},
				}},
			}
			buf := newWriter().Struct(7).
				Field(0).Int(-300).
				Field(1).String("Terran").
				Field(2).Bool(true).
				Field(3).Array(3).Int(1).Int(2).Int(3).
				Field(4).BitBlob(10, []byte{0x10, 0x02}).
				Field(5).Optional(false).
				Field(6).FourCC("Prot").
				Build()

			v, err := NewVersionedDecoder(buf, schema).Instance(8)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(StructValue(
				Entry{Name: "m_int", Value: IntValue(-300)},
				Entry{Name: "m_blob", Value: BlobValue("Terran")},
				Entry{Name: "m_bool", Value: BoolValue(true)},
				Entry{Name: "m_array", Value: ArrayValue([]Value{IntValue(1), IntValue(2), IntValue(3)})},
				Entry{Name: "m_bits", Value: PairValue(10, 0x12)},
				Entry{Name: "m_opt", Value: NullValue()},
				Entry{Name: "m_fourcc", Value: BlobValue("Prot")},
			)))

			v, err = NewVersionedDecoder(nil, schema).Instance(7)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(NullValue()))
		})

		It("degrades an invalid UTF-8 blob to an empty string", func() {
			schema := Schema{{Kind: KindBlob}}
			buf := newWriter().Blob([]byte{0xC3, 0x28}).Build()

			v, err := NewVersionedDecoder(buf, schema).Instance(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(BlobValue("")))
		})

		It("consumes but does not materialize filtered values", func() {
			buf := newWriter().
				Struct(1).Field(0).Int(13).
				Int(99).
				Build()

			d := NewVersionedDecoder(buf, threeInts)
			v, err := d.InstanceFiltered(3, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(v.Kind).To(Equal(ValueEmpty))

			v, err = d.Instance(0)
			Expect(err).ToNot(HaveOccurred())
			Expect(v).To(Equal(IntValue(99)))
		})

		It("reports truncation", func() {
			buf := newWriter().Struct(2).Field(0).Int(13).Build()
			_, err := NewVersionedDecoder(buf, threeInts).Instance(3)
			expectKind(err, errkind.Truncated)

			buf = newWriter().Blob([]byte("abcdef")).Build()
			_, err = NewVersionedDecoder(buf[:len(buf)-2], Schema{{Kind: KindBlob}}).Instance(0)
			expectKind(err, errkind.Truncated)
		})

		It("rejects a negative length", func() {
			buf := newWriter().Kind(2).Vint(-3).Build()
			_, err := NewVersionedDecoder(buf, Schema{{Kind: KindBlob}}).Instance(0)
			expectKind(err, errkind.Corrupted)
		})
	})

	Context("variable-length integers", func() {
		table.DescribeTable("round-trip",
			func(v int64, size int) {
				enc := EncodeVint(v)
				Expect(enc).To(HaveLen(size))

				buf := append([]byte{9}, enc...)
				got, err := NewVersionedDecoder(buf, Schema{{Kind: KindInt}}).Instance(0)
				Expect(err).ToNot(HaveOccurred())
				Expect(got).To(Equal(IntValue(v)))
			},
			table.Entry("zero", int64(0), 1),
			table.Entry("one", int64(1), 1),
			table.Entry("minus one", int64(-1), 1),
			table.Entry("largest one-byte", int64(63), 1),
			table.Entry("smallest two-byte", int64(64), 2),
			table.Entry("negative two-byte", int64(-64), 2),
			table.Entry("largest two-byte", int64(1<<13-1), 2),
			table.Entry("smallest three-byte", int64(1<<13), 3),
			table.Entry("four-byte", int64(1<<20), 4),
			table.Entry("negative four-byte", int64(-(1 << 20)), 4),
			table.Entry("five-byte", int64(1<<27), 5),
			table.Entry("negative five-byte", int64(-(1 << 27)), 5),
			table.Entry("max", int64(math.MaxInt64), 10),
			table.Entry("min", int64(math.MinInt64), 10),
		)

		It("encodes the sign in the low bit", func() {
			Expect(EncodeVint(-1)).To(Equal([]byte{0x03}))
			Expect(EncodeVint(1)).To(Equal([]byte{0x02}))
			Expect(EncodeVint(64)).To(Equal([]byte{0x80, 0x01}))
		})

		It("rejects an over-long encoding", func() {
			buf := []byte{9, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01}
			_, err := NewVersionedDecoder(buf, Schema{{Kind: KindInt}}).Instance(0)
			expectKind(err, errkind.Corrupted)
		})
	})
})
