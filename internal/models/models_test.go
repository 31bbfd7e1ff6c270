package models

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storedRef = "/uploads/3f2b8c1e-7a4d-4e2f-9b61-0c5d8e7a9f10.png"

func TestTurnJSONUsesPlainStrings(t *testing.T) {
	turn := Turn{Role: RoleUser, Parts: []Part{TextPart("a <b> & c"), ImagePart(storedRef)}}
	data, err := json.Marshal(turn)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","parts":["a <b> & c","`+storedRef+`"]}`, string(data))

	var back Turn
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Parts, 2)
	assert.Equal(t, PartText, back.Parts[0].Kind)
	assert.Equal(t, "a <b> & c", back.Parts[0].Text)
	assert.Equal(t, PartImage, back.Parts[1].Kind)
	assert.Equal(t, storedRef, back.Parts[1].Path)
}

func TestTextResemblingUploadPathStaysText(t *testing.T) {
	texts := []string{
		"/uploads/notes.txt is my path",
		"/uploads/notes.txt",
		"/uploads/3f2b8c1e-7a4d-4e2f-9b61-0c5d8e7a9f10.png and more",
		"/uploads/3f2b8c1e-7a4d-4e2f-9b61-0c5d8e7a9f10/x.png",
		"/uploads/",
	}
	for _, text := range texts {
		data, err := json.Marshal(TextPart(text))
		require.NoError(t, err)

		var back Part
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, PartText, back.Kind, text)
		assert.Equal(t, text, back.Text)
	}
}

func TestIsAssetRef(t *testing.T) {
	id := uuid.MustParse("3f2b8c1e-7a4d-4e2f-9b61-0c5d8e7a9f10")
	assert.True(t, IsAssetRef(AssetURLPrefix+AssetName(id, ".png")))
	assert.True(t, IsAssetRef(AssetURLPrefix+AssetName(id, "")))
	assert.Equal(t, id.String(), AssetName(id, ". bad"))

	assert.False(t, IsAssetRef(AssetURLPrefix+id.String()+"."))
	assert.False(t, IsAssetRef(AssetURLPrefix+id.String()+".tar.gz"))
	assert.False(t, IsAssetRef(AssetURLPrefix+id.String()+".verylongext"))
	assert.False(t, IsAssetRef("/static/"+id.String()+".png"))
	assert.False(t, IsAssetRef(AssetURLPrefix+"3F2B8C1E-7A4D-4E2F-9B61-0C5D8E7A9F10.png"))
}

func TestInlineImageIsNotPersisted(t *testing.T) {
	turn := Turn{Role: RoleUser, Parts: []Part{InlineImagePart([]byte{1, 2}, "image/png")}}
	_, err := json.Marshal(turn)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInlinePart)
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := &Session{ID: "s1", Title: "t", History: []Turn{{Role: RoleUser, Parts: []Part{TextPart("hi")}}}}
	c := s.Clone()
	c.History[0].Parts[0] = TextPart("changed")
	c.History = append(c.History, Turn{Role: RoleModel})

	assert.Equal(t, "hi", s.History[0].Parts[0].Text)
	assert.Len(t, s.History, 1)
}

func TestTurnText(t *testing.T) {
	turn := Turn{Role: RoleUser, Parts: []Part{TextPart("look"), ImagePart(storedRef), TextPart("here")}}
	assert.Equal(t, "look here", turn.Text())
}
