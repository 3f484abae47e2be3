package common_test

import (
	"encoding/json"
	"printflow/common"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Date", func() {
	Describe("ParseDate", func() {
		It("should parse dates in YYYY-MM-DD form", func() {
			d, err := common.ParseDate("2024-01-31")
			Expect(err).To(BeNil())
			Expect(d).To(Equal(common.DateOf(2024, 1, 31)))
			Expect(d.String()).To(Equal("2024-01-31"))
		})
		It("should reject other layouts", func() {
			for _, s := range []string{"2024/01/31", "31-01-2024", "2024-13-01", "", "2024-01-31T10:00:00Z"} {
				_, err := common.ParseDate(s)
				Expect(err).To(HaveOccurred())
			}
		})
	})

	Describe("JSON", func() {
		It("should be encoded as a plain date string", func() {
			bytes, err := json.Marshal(common.DateOf(2021, 5, 6))
			Expect(err).To(BeNil())
			Expect(string(bytes)).To(Equal(`"2021-05-06"`))

			var d common.Date
			Expect(json.Unmarshal([]byte(`"2021-05-06"`), &d)).To(Succeed())
			Expect(d).To(Equal(common.DateOf(2021, 5, 6)))
			Expect(json.Unmarshal([]byte(`"06.05.2021"`), &d)).ToNot(Succeed())
		})
	})

	Describe("Value", func() {
		It("should be stored as a date string", func() {
			v, err := common.DateOf(2021, 5, 6).Value()
			Expect(err).To(BeNil())
			Expect(v).To(Equal("2021-05-06"))
		})
	})

	Describe("Scan", func() {
		It("should be able to scan driver values", func() {
			var d common.Date
			Expect(d.Scan(time.Date(2021, 5, 6, 13, 14, 15, 0, time.Local))).To(Succeed())
			Expect(d).To(Equal(common.DateOf(2021, 5, 6)))

			Expect(d.Scan("2022-02-03")).To(Succeed())
			Expect(d).To(Equal(common.DateOf(2022, 2, 3)))

			Expect(d.Scan([]byte("2023-03-04 00:00:00"))).To(Succeed())
			Expect(d).To(Equal(common.DateOf(2023, 3, 4)))

			Expect(d.Scan(12)).ToNot(Succeed())
		})
	})
})
