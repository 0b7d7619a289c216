package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{name: "dedupe-array", in: []string{"cat", "cat", "dog"}, want: "cat,dog"},
		{name: "comma-string", in: []string{"cat, tiger ,cat"}, want: "cat,tiger"},
		{name: "empty-items", in: []string{"", " ", "a,,b"}, want: "a,b"},
		{name: "nil", in: nil, want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeTags(tt.in), tt.name)
	}
}

func TestTagListAcceptsStringOrArray(t *testing.T) {
	var fromArray, fromString TagList
	require.NoError(t, json.Unmarshal([]byte(`["cat","cat","dog"]`), &fromArray))
	require.NoError(t, json.Unmarshal([]byte(`"cat, dog"`), &fromString))

	assert.Equal(t, TagList{"cat", "cat", "dog"}, fromArray)
	assert.Equal(t, TagList{"cat", "dog"}, fromString)

	var bad TagList
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestImageEditIgnoresProtectedFields(t *testing.T) {
	old := Image{
		Keys:       Keys{PartitionKey: "masterFinal", RowKey: "RKey-IMG_01"},
		ImageName:  "Tiger",
		Tags:       "cat",
		Uploader:   "alice@example.com",
		ApprovedBy: "bob",
		Folder:     "home",
		FileType:   "jpeg",
		ImagePath:  "IMG_01.JPEG",
		DateTaken:  "1716350400000",
	}
	payload := []byte(`{
		"rowKey": "RKey-IMG_01",
		"imageName": "Tiger2",
		"tags": ["cat","cat","dog"],
		"approvedBy": "mallory",
		"folder": "elsewhere",
		"uploader": "mallory",
		"imagePath": "evil.jpg",
		"partitionKey": "other"
	}`)
	var edit ImageEdit
	require.NoError(t, json.Unmarshal(payload, &edit))

	got := edit.ApplyTo(old)
	assert.Equal(t, "Tiger2", got.ImageName)
	assert.Equal(t, "cat,dog", got.Tags)
	assert.Equal(t, "bob", got.ApprovedBy)
	assert.Equal(t, "home", got.Folder)
	assert.Equal(t, "alice@example.com", got.Uploader)
	assert.Equal(t, "IMG_01.JPEG", got.ImagePath)
	assert.Equal(t, "masterFinal", got.PartitionKey)
	assert.Equal(t, "1716350400000", got.DateTaken)
}

func TestImageEditBlankDateBecomesNoDate(t *testing.T) {
	blank := " "
	got := ImageEdit{DateTaken: &blank}.ApplyTo(Image{DateTaken: "1"})
	assert.Equal(t, NoDate, got.DateTaken)
}

func TestKeysHelpers(t *testing.T) {
	assert.Equal(t, "RKey-IMG_01", ImageRowKey("IMG_01.JPEG"))
	assert.Equal(t, "archive", StripExt("archive.tar.gz"))
	assert.Equal(t, "RKey-a.jpg-1700-Delete-bob-x1", AuditRowKey("a.jpg", 1700, AuditDelete, "bob", "x1"))
	assert.Equal(t, "trips-Day1", JournalRowKey("trips", "Day1"))

	img := Image{Keys: Keys{RowKey: "r", ETag: "tok"}}
	assert.Empty(t, StripStoreMeta(img).ETag)
	assert.Equal(t, "r", StripStoreMeta(img).RowKey)
}
