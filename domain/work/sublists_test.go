package work

import (
	"encoding/json"
	"printflow/bizerror"
	"printflow/session"
	"testing"

	. "github.com/onsi/gomega"
)

func TestIsAbsoluteURL(t *testing.T) {
	RegisterTestingT(t)

	Expect(isAbsoluteURL("https://example.com/a?b=c")).To(BeTrue())
	Expect(isAbsoluteURL("ftp://files.example.com")).To(BeTrue())
	Expect(isAbsoluteURL("example.com")).To(BeFalse())
	Expect(isAbsoluteURL("mailto:someone@example.com")).To(BeFalse())
	Expect(isAbsoluteURL("https://")).To(BeFalse())
}

func TestWorkSubLists(t *testing.T) {
	RegisterTestingT(t)
	st := newStamp(session.Identity{ID: 3, Name: "jdoe", Nickname: "John Doe"})

	t.Run("should stamp added items", func(t *testing.T) {
		Expect(st.by).To(Equal("John Doe (3)"))

		w := Work{}
		Expect(w.AddLink(LinkCreation{URL: " https://example.com ", Title: " Proof "}, st)).To(BeNil())
		Expect(w.Links).To(Equal(Links{{URL: "https://example.com", Title: "Proof", AddedBy: st.by, AddedAt: st.at}}))
	})

	t.Run("should normalize confirmation dates before the uniqueness check", func(t *testing.T) {
		w := Work{}
		Expect(w.AddConfirmation(ConfirmationCreation{Date: "2024-03-01"}, st)).To(BeNil())
		Expect(w.AddConfirmation(ConfirmationCreation{Date: "2024-3-1"}, st)).To(HaveOccurred())
		Expect(w.AddConfirmation(ConfirmationCreation{Date: " 2024-03-01 "}, st)).
			To(Equal(&bizerror.ErrConflict{Message: "confirmation for 2024-03-01 already exists"}))
		Expect(len(w.Confirmations)).To(Equal(1))

		Expect(w.RemoveConfirmation("2024-03-02")).To(BeFalse())
		Expect(w.RemoveConfirmation("2024-03-01")).To(BeTrue())
		Expect(w.Confirmations).To(BeEmpty())
	})

	t.Run("should compare printing locations case-sensitively", func(t *testing.T) {
		w := Work{}
		Expect(w.AddPrintingLocation(PrintingLocationCreation{Location: "Hall 1"}, st)).To(BeNil())
		Expect(w.AddPrintingLocation(PrintingLocationCreation{Location: "hall 1"}, st)).To(BeNil())
		Expect(w.AddPrintingLocation(PrintingLocationCreation{Location: "Hall 1"}, st)).
			To(Equal(&bizerror.ErrConflict{Message: "printing location 'Hall 1' already exists"}))
		Expect(w.AddPrintingLocation(PrintingLocationCreation{Location: "  "}, st)).To(HaveOccurred())
	})

	t.Run("should remove the latest link with the url", func(t *testing.T) {
		w := Work{Links: Links{{URL: "https://a", Title: "first"}, {URL: "https://b"}, {URL: "https://a", Title: "second"}}}
		Expect(w.RemoveLink("https://a")).To(BeTrue())
		Expect(w.Links).To(Equal(Links{{URL: "https://a", Title: "first"}, {URL: "https://b"}}))
		Expect(w.RemoveLink("https://a")).To(BeTrue())
		Expect(w.Links).To(Equal(Links{{URL: "https://b"}}))
		Expect(w.RemoveLink("https://a")).To(BeFalse())
	})

	t.Run("should restore the list when a duplicate link is added and removed", func(t *testing.T) {
		original := Links{{URL: "https://a", Title: "first"}, {URL: "https://b"}}
		w := Work{Links: append(Links{}, original...)}
		Expect(w.AddLink(LinkCreation{URL: "https://a", Title: "again"}, st)).To(BeNil())
		Expect(w.RemoveLink("https://a")).To(BeTrue())
		Expect(w.Links).To(Equal(original))
	})

	t.Run("should validate decoded items", func(t *testing.T) {
		c := LinkCreation{}
		Expect(decodeItem(json.RawMessage(`{"url":"nope"}`), &c)).To(HaveOccurred())
		Expect(decodeItem(json.RawMessage(`{"url":"https://example.com"}`), &c)).To(BeNil())

		cc := ConfirmationCreation{}
		Expect(decodeItem(json.RawMessage(`{"date":"01/03/2024"}`), &cc)).To(HaveOccurred())
		Expect(decodeItem(json.RawMessage(`not json`), &cc)).To(HaveOccurred())
	})
}

func TestReplaceSubLists(t *testing.T) {
	RegisterTestingT(t)
	old := stamp{by: "Old (1)", at: "2024-01-01T00:00:00Z"}
	now := stamp{by: "New (2)", at: "2024-02-01T00:00:00Z"}

	t.Run("should keep stamps of items already present", func(t *testing.T) {
		prior := Links{{URL: "https://a", Title: "A", AddedBy: old.by, AddedAt: old.at}}
		links, err := replaceLinks([]LinkCreation{{URL: "https://a", Title: "A2"}, {URL: "https://b"}}, prior, now)
		Expect(err).To(BeNil())
		Expect(len(links)).To(Equal(2))
		Expect(links[0].AddedBy).To(Equal(old.by))
		Expect(links[0].Title).To(Equal("A2"))
		Expect(links[1].AddedBy).To(Equal(now.by))
	})

	t.Run("should reject duplicates in a full list", func(t *testing.T) {
		_, err := replaceConfirmations([]ConfirmationCreation{{Date: "2024-03-01"}, {Date: "2024-03-01"}}, nil, now)
		Expect(err).To(HaveOccurred())
		_, err = replacePrintingLocations([]PrintingLocationCreation{{Location: "X"}, {Location: "X"}}, nil, now)
		Expect(err).To(HaveOccurred())
	})
}

func TestWorkStatus(t *testing.T) {
	RegisterTestingT(t)

	Expect((&Work{StockEntry: true, PrintingConfirm: true}).Status().Code).To(Equal(StatusCompleted))
	Expect((&Work{PrintingConfirm: true}).Status()).To(Equal(Status{Code: StatusPrinting, Text: "Printing", Color: "#28a745"}))
	Expect((&Work{}).Status().Color).To(Equal("#6c757d"))
}
