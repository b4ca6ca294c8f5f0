package mongostore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/mdstats/internal/ir"
	"github.com/roach88/mdstats/internal/metrics"
	"github.com/roach88/mdstats/internal/querybuild"
	"github.com/roach88/mdstats/internal/queryir"
)

func TestCompileFilter(t *testing.T) {
	tree := queryir.And{Children: []queryir.Node{
		queryir.Leaf{Field: "published", Predicate: ir.IRBool(true)},
		queryir.Or{Children: []queryir.Node{
			queryir.In("metadata.REFERENCES", []ir.IRValue{ir.IRString("P1"), ir.IRString("P2")}),
			queryir.Leaf{Field: "metadata.LENGTH", Predicate: ir.IRObject{"$lt": ir.IRInt(10), "$gt": ir.IRFloat(0.5)}},
		}},
	}}

	got, err := CompileFilter(tree)
	require.NoError(t, err)

	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "published", Value: true}},
		bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "metadata.REFERENCES", Value: bson.D{{Key: "$in", Value: bson.A{"P1", "P2"}}}}},
			bson.D{{Key: "metadata.LENGTH", Value: bson.D{
				{Key: "$gt", Value: 0.5},
				{Key: "$lt", Value: int64(10)},
			}}},
		}}},
	}}}
	assert.Equal(t, want, got)
}

func TestCompileFilter_NilAndNull(t *testing.T) {
	got, err := CompileFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, got)

	got, err = CompileFilter(queryir.Leaf{Field: "metadata.REFERENCES", Predicate: ir.IRNull{}})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "metadata.REFERENCES", Value: nil}}, got)
}

func TestCompileFilter_EmptyIn(t *testing.T) {
	got, err := CompileFilter(queryir.In("metadata.REFERENCES", nil))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "metadata.REFERENCES", Value: bson.D{{Key: "$in", Value: bson.A{}}}}}, got)
}

func TestCompileFilter_KeepsFragmentKeyOrder(t *testing.T) {
	node, err := querybuild.ParseFragment(`{"published": true, "metadata.pdbInfo": {"z": 1, "a": {"y": [1.5, {"q": null, "b": "s"}], "c": true}}}`)
	require.NoError(t, err)

	got, err := CompileFilter(node)
	require.NoError(t, err)

	want := bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "published", Value: true}},
		bson.D{{Key: "metadata.pdbInfo", Value: bson.D{
			{Key: "z", Value: int64(1)},
			{Key: "a", Value: bson.D{
				{Key: "y", Value: bson.A{1.5, bson.D{{Key: "q", Value: nil}, {Key: "b", Value: "s"}}}},
				{Key: "c", Value: true},
			}},
		}}},
	}}}
	assert.Equal(t, want, got)
}

func TestFromBSON(t *testing.T) {
	oid := bson.NewObjectID()
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	raw := bson.D{
		{Key: "_id", Value: oid},
		{Key: "n32", Value: int32(3)},
		{Key: "n64", Value: int64(4)},
		{Key: "f", Value: 2.5},
		{Key: "s", Value: "x"},
		{Key: "b", Value: true},
		{Key: "null", Value: nil},
		{Key: "when", Value: bson.NewDateTimeFromTime(when)},
		{Key: "mds", Value: bson.A{bson.D{{Key: "frames", Value: int32(10)}}}},
		{Key: "m", Value: bson.M{"k": "v"}},
	}

	got := FromBSON(raw)

	want := ir.IRObject{
		"_id":  ir.IRString(oid.Hex()),
		"n32":  ir.IRInt(3),
		"n64":  ir.IRInt(4),
		"f":    ir.IRFloat(2.5),
		"s":    ir.IRString("x"),
		"b":    ir.IRBool(true),
		"null": ir.IRNull{},
		"when": ir.IRString("2024-03-01T12:00:00.000Z"),
		"mds":  ir.IRArray{ir.IRObject{"frames": ir.IRInt(10)}},
		"m":    ir.IRObject{"k": ir.IRString("v")},
	}
	assert.True(t, ir.Equal(want, got), "got %v", got)
}

func TestFromBSON_Decimal(t *testing.T) {
	tests := []struct {
		in   string
		want ir.IRValue
	}{
		{"12.25", ir.IRFloat(12.25)},
		{"NaN", ir.IRNull{}},
		{"Infinity", ir.IRNull{}},
		{"-Infinity", ir.IRNull{}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := bson.ParseDecimal128(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, FromBSON(d))
		})
	}
}

func TestFromBSON_NonFiniteDoubles(t *testing.T) {
	raw := bson.D{{Key: "metadata", Value: bson.D{
		{Key: "LENGTH", Value: math.NaN()},
		{Key: "SNAPSHOTS", Value: math.Inf(1)},
		{Key: "FRAMESTEP", Value: math.Inf(-1)},
	}}}

	want := ir.IRObject{"metadata": ir.IRObject{
		"LENGTH":    ir.IRNull{},
		"SNAPSHOTS": ir.IRNull{},
		"FRAMESTEP": ir.IRNull{},
	}}
	assert.True(t, ir.Equal(want, FromBSON(raw)))
}

func TestFromBSON_TypesWithoutJSONForm(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want ir.IRValue
	}{
		{"binary", bson.Binary{Data: []byte{1}}, ir.IRNull{}},
		{"timestamp", bson.Timestamp{T: 1, I: 2}, ir.IRNull{}},
		{"undefined", bson.Undefined{}, ir.IRNull{}},
		{"min key", bson.MinKey{}, ir.IRNull{}},
		{"max key", bson.MaxKey{}, ir.IRNull{}},
		{"javascript", bson.JavaScript("function() {}"), ir.IRString("function() {}")},
		{"symbol", bson.Symbol("sym"), ir.IRString("sym")},
		{"regex", bson.Regex{Pattern: "^a", Options: "i"}, ir.IRString("/^a/i")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromBSON(bson.D{{Key: "v", Value: tt.in}})
			assert.True(t, ir.Equal(ir.IRObject{"v": tt.want}, got), "got %v", got)
		})
	}
}

// A project with anomalous values is still counted; the anomalies score zero.
func TestFromBSON_AnomalousProjectStillCounts(t *testing.T) {
	raws := []bson.D{
		{
			{Key: "_id", Value: "A"},
			{Key: "metadata", Value: bson.D{{Key: "LENGTH", Value: math.NaN()}, {Key: "SNAPSHOTS", Value: int32(100)}}},
			{Key: "files", Value: bson.A{"a"}},
			{Key: "stamp", Value: bson.Timestamp{T: 1}},
		},
		{
			{Key: "_id", Value: "B"},
			{Key: "metadata", Value: bson.D{{Key: "LENGTH", Value: int32(10)}, {Key: "SNAPSHOTS", Value: int32(50)}}},
		},
	}
	docs := func(yield func(ir.IRObject, error) bool) {
		for _, raw := range raws {
			if !yield(FromBSON(raw).(ir.IRObject), nil) {
				return
			}
		}
	}

	sum, err := metrics.Aggregate(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.ProjectsCount)
	assert.Equal(t, int64(2), sum.MDCount)
	assert.Equal(t, float64(10), sum.TotalTime)
	assert.Equal(t, float64(150), sum.TotalFrames)
	assert.Equal(t, int64(1), sum.TotalFiles)
}

func TestRoundTrip(t *testing.T) {
	doc := ir.IRObject{
		"_id":       ir.IRString("MCNS00001"),
		"published": ir.IRBool(true),
		"metadata": ir.IRObject{
			"LENGTH":     ir.IRFloat(10.5),
			"SNAPSHOTS":  ir.IRInt(100),
			"REFERENCES": ir.IRArray{ir.IRString("P1")},
		},
	}

	assert.True(t, ir.Equal(doc, FromBSON(ToBSON(doc))))
}

func TestProjections(t *testing.T) {
	assert.Equal(t,
		bson.D{{Key: "id", Value: 0}, {Key: "metadata.pdbInfo", Value: 0}},
		ExclusionProjection([]string{"id", "metadata.pdbInfo"}))
	assert.Empty(t, ExclusionProjection(nil))

	assert.Equal(t, bson.D{{Key: "uniprot", Value: 1}, {Key: "_id", Value: 0}}, InclusionProjection("uniprot"))
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, InclusionProjection("_id"))
}

func TestWithoutID(t *testing.T) {
	doc := bson.D{{Key: "_id", Value: nil}, {Key: "a", Value: 1}}
	assert.Equal(t, bson.D{{Key: "a", Value: 1}}, withoutID(doc))
	assert.Len(t, doc, 2)
}
