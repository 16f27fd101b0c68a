package connectors

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/models"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

const sampleGedcom = `0 HEAD
1 SOUR willow-test
0 @I1@ INDI
1 NAME John /Doe/
1 BIRT
2 DATE 1 JAN 1950
1 DEAT
2 DATE 2 FEB 2020
0 @I2@ INDI
1 NAME Jane /Doe/
0 @I3@ INDI
1 NAME Billy /Doe/
0 @F1@ FAM
1 HUSB @I1@
1 WIFE @I2@
1 CHIL @I3@
0 TRLR
`

func gedcomCredentials(t *testing.T, fileName, content string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(GedcomCredentials{FileName: fileName, Content: content})
	require.NoError(t, err)
	return b
}

func drainSequence(t *testing.T, seq Sequence) []models.NormalizedContent {
	t.Helper()
	var items []models.NormalizedContent
	for {
		item, err := seq.Next(context.Background())
		if err == io.EOF {
			return items
		}
		require.NoError(t, err)
		items = append(items, *item)
	}
}

func TestGedcomConnector_Authenticate(t *testing.T) {
	connector := NewGedcomConnector(noopLogger())
	ctx := context.Background()

	t.Run("accepts a file with a GEDCOM header", func(t *testing.T) {
		info, err := connector.Authenticate(ctx, gedcomCredentials(t, "smith-tree.ged", sampleGedcom))
		require.NoError(t, err)
		assert.Equal(t, "smith-tree.ged", info.DisplayName)
		assert.NotEmpty(t, info.ExternalAccountID)
	})

	t.Run("same upload yields the same account id", func(t *testing.T) {
		first, err := connector.Authenticate(ctx, gedcomCredentials(t, "smith-tree.ged", sampleGedcom))
		require.NoError(t, err)
		second, err := connector.Authenticate(ctx, gedcomCredentials(t, "smith-tree.ged", sampleGedcom))
		require.NoError(t, err)
		assert.Equal(t, first.ExternalAccountID, second.ExternalAccountID)
	})

	t.Run("defaults the display name when no file name is given", func(t *testing.T) {
		info, err := connector.Authenticate(ctx, gedcomCredentials(t, "", sampleGedcom))
		require.NoError(t, err)
		assert.Equal(t, "uploaded tree", info.DisplayName)
	})

	t.Run("rejects files without a GEDCOM header", func(t *testing.T) {
		_, err := connector.Authenticate(ctx, gedcomCredentials(t, "notes.txt", "hello world"))
		assert.ErrorIs(t, err, models.ErrAuth)
	})

	t.Run("rejects empty content", func(t *testing.T) {
		_, err := connector.Authenticate(ctx, gedcomCredentials(t, "empty.ged", ""))
		assert.ErrorIs(t, err, models.ErrAuth)
	})

	t.Run("rejects malformed credentials", func(t *testing.T) {
		_, err := connector.Authenticate(ctx, json.RawMessage(`not json`))
		assert.ErrorIs(t, err, models.ErrAuth)
	})
}

func TestGedcomConnector_Fetch(t *testing.T) {
	connector := NewGedcomConnector(noopLogger())
	ctx := context.Background()

	seq, err := connector.Fetch(ctx, gedcomCredentials(t, "smith-tree.ged", sampleGedcom))
	require.NoError(t, err)

	items := drainSequence(t, seq)
	require.Len(t, items, 6)

	byID := make(map[string]models.NormalizedContent, len(items))
	for _, item := range items {
		byID[item.SourceItemID] = item
	}

	t.Run("individuals become person items", func(t *testing.T) {
		john, ok := byID["I1"]
		require.True(t, ok)
		assert.Equal(t, models.ContentTypePerson, john.ContentType)
		assert.Equal(t, "John Doe", john.Title)
		require.Len(t, john.People, 1)
		assert.Equal(t, "John", john.People[0].GivenName)
		assert.Equal(t, "Doe", john.People[0].Surname)

		var data map[string]string
		require.NoError(t, json.Unmarshal(john.Data, &data))
		assert.Equal(t, "1 JAN 1950", data["birth_date"])
		assert.Equal(t, "2 FEB 2020", data["death_date"])
	})

	t.Run("individuals without events omit the dates", func(t *testing.T) {
		jane, ok := byID["I2"]
		require.True(t, ok)

		var data map[string]string
		require.NoError(t, json.Unmarshal(jane.Data, &data))
		assert.NotContains(t, data, "birth_date")
		assert.NotContains(t, data, "death_date")
	})

	t.Run("families become spouse and parent relationships", func(t *testing.T) {
		spouse, ok := byID["F0:spouse:I1:I2"]
		require.True(t, ok)
		assert.Equal(t, models.ContentTypeRelationship, spouse.ContentType)

		var data map[string]string
		require.NoError(t, json.Unmarshal(spouse.Data, &data))
		assert.Equal(t, "spouse", data["relation"])
		assert.Equal(t, "I1", data["from"])
		assert.Equal(t, "I2", data["to"])

		_, ok = byID["F0:parent:I1:I3"]
		assert.True(t, ok)
		_, ok = byID["F0:parent:I2:I3"]
		assert.True(t, ok)
	})

	t.Run("rejects malformed files", func(t *testing.T) {
		_, err := connector.Fetch(ctx, gedcomCredentials(t, "bad.ged", "0 HEAD\nnonsense line here\n"))
		assert.Error(t, err)
	})
}

func TestParseGedcomName(t *testing.T) {
	cases := []struct {
		value   string
		display string
		given   string
		surname string
	}{
		{"John /Doe/", "John Doe", "John", "Doe"},
		{"Madonna", "Madonna", "Madonna", ""},
		{"Mary /de la Cruz/ Jr", "Mary de la Cruz Jr", "Mary", "de la Cruz"},
		{"/Smith/", "Smith", "", "Smith"},
	}

	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			display, given, surname := parseGedcomName(tc.value)
			assert.Equal(t, tc.display, display)
			assert.Equal(t, tc.given, given)
			assert.Equal(t, tc.surname, surname)
		})
	}
}

func TestSliceSequence(t *testing.T) {
	seq := &sliceSequence{items: []models.NormalizedContent{
		{SourceItemID: "a"},
		{SourceItemID: "b"},
	}}

	first, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", first.SourceItemID)

	second, err := seq.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", second.SourceItemID)

	_, err = seq.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	t.Run("stops on cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		fresh := &sliceSequence{items: []models.NormalizedContent{{SourceItemID: "a"}}}
		_, err := fresh.Next(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
