package redis

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/occdex/internal/db"
	"github.com/kailas-cloud/occdex/pkg/query"
)

func isDBError(err error, op string) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr) && dbErr.Op == op
}

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); !isDBError(err, db.OpPing) {
		t.Fatalf("expected ping db.Error, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	s := newStore(nil, "app:")
	if got := s.docKey("post", "42"); got != "app:{post}:42" {
		t.Errorf("docKey = %q", got)
	}
	if got := s.termKey("post"); got != "app:__term:{post}" {
		t.Errorf("termKey = %q", got)
	}
	if got := s.ftIndexName("post"); got != "app:post:idx" {
		t.Errorf("ftIndexName = %q", got)
	}
	if got := newStore(nil, "").prefix; got != DefaultKeyPrefix {
		t.Errorf("default prefix = %q", got)
	}
}

func TestContainsIgnoreCase(t *testing.T) {
	tests := []struct {
		s, sub string
		want   bool
	}{
		{"Index Already Exists", "index already exists", true},
		{"UNKNOWN INDEX NAME", "unknown index name", true},
		{"hello world", "world", true},
		{"short", "longer than input", false},
		{"exact", "exact", true},
		{"", "", true},
		{"notempty", "", true},
	}
	for _, tc := range tests {
		got := containsIgnoreCase(tc.s, tc.sub)
		if got != tc.want {
			t.Errorf("containsIgnoreCase(%q, %q) = %v, want %v", tc.s, tc.sub, got, tc.want)
		}
	}
}

// --- write.go tests ---

func evalFor(id string) gomock.Matcher {
	return mock.MatchFn(func(cmd []string) bool {
		return cmd[0] == "EVAL" && len(cmd) == 11 && cmd[3] == "occdex:{post}:"+id
	})
}

func TestIndex_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	var got []string
	c.EXPECT().
		Do(gomock.Any(), evalFor("1")).
		DoAndReturn(func(_ context.Context, cmd rueidis.Completed) rueidis.RedisResult {
			got = cmd.Commands()
			return mock.Result(mock.RedisArray(
				mock.RedisInt64(0), mock.RedisInt64(1), mock.RedisInt64(201),
			))
		})

	s := NewStoreForTest(c)
	res, err := s.Index(context.Background(), &db.WriteRequest{
		Index:       "post",
		ID:          "1",
		Body:        []byte(`{"title":"hello"}`),
		ContentType: db.ContentTypeJSON,
		OpType:      db.OpTypeCreate,
		IfSeqNo:     db.UnassignedSeqNo,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(db.WriteResult{SeqNo: 0, PrimaryTerm: 1}, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"EVAL", writeScript, "2",
		"occdex:{post}:1", "occdex:__term:{post}",
		"create", "-2", "0", "1", "0", `{"title":"hello"}`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
}

func TestIndex_CompareAndSwapArgs(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "EVAL" && cmd[5] == "index" && cmd[6] == "3" && cmd[7] == "1" && cmd[9] == "1"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(4), mock.RedisInt64(1), mock.RedisInt64(200),
		)))

	s := NewStoreForTest(c)
	res, err := s.Index(context.Background(), &db.WriteRequest{
		Index:           "post",
		ID:              "1",
		Body:            []byte(`{}`),
		HasPrecondition: true,
		IfSeqNo:         3,
		IfPrimaryTerm:   1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SeqNo != 4 {
		t.Errorf("expected seq_no 4, got %d", res.SeqNo)
	}
}

func TestIndex_Conflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), evalFor("1")).
		Return(mock.Result(mock.RedisError(
			"VERSION_CONFLICT [1]: required seq_no [0], primary term [1]; current document has seq_no [1] and primary term [1]",
		)))

	s := NewStoreForTest(c)
	_, err := s.Index(context.Background(), &db.WriteRequest{
		Index: "post", ID: "1", Body: []byte(`{}`),
		HasPrecondition: true, IfSeqNo: 0, IfPrimaryTerm: 1,
	})
	if !db.IsVersionConflict(err) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if !isDBError(err, db.OpIndex) {
		t.Errorf("expected index db.Error, got %T", err)
	}
}

func TestIndex_TransportError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), evalFor("1")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.Index(context.Background(), &db.WriteRequest{Index: "post", ID: "1", Body: []byte(`{}`)})
	if err == nil || db.IsVersionConflict(err) {
		t.Fatalf("expected non-conflict error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestIndex_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := NewStoreForTest(c)
	tests := []struct {
		name string
		req  db.WriteRequest
	}{
		{"no index", db.WriteRequest{ID: "1", Body: []byte(`{}`)}},
		{"no id", db.WriteRequest{Index: "post", Body: []byte(`{}`)}},
		{"no body", db.WriteRequest{Index: "post", ID: "1"}},
		{"bad content type", db.WriteRequest{Index: "post", ID: "1", Body: []byte(`{}`), ContentType: "text/plain"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Index(context.Background(), &tc.req); !isDBError(err, db.OpIndex) {
				t.Errorf("expected index db.Error, got %v", err)
			}
		})
	}
}

func TestBulk_PartialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), evalFor("a"), evalFor("b")).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisArray(mock.RedisInt64(0), mock.RedisInt64(1), mock.RedisInt64(201))),
			mock.Result(mock.RedisError("VERSION_CONFLICT [b]: document already exists (current seq_no [2])")),
		})

	s := NewStoreForTest(c)
	items, err := s.Bulk(context.Background(), []db.WriteRequest{
		{Index: "post", ID: "a", Body: []byte(`{}`), OpType: db.OpTypeCreate},
		{Index: "post", ID: "", Body: []byte(`{}`)},
		{Index: "post", ID: "b", Body: []byte(`{}`), OpType: db.OpTypeCreate},
	}, db.RefreshNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	if items[0].Failed() || items[0].Status != http.StatusCreated || items[0].PrimaryTerm != 1 {
		t.Errorf("item 0: %+v", items[0])
	}
	if !items[1].Failed() || items[1].Status != http.StatusBadRequest {
		t.Errorf("item 1: %+v", items[1])
	}
	if !db.IsVersionConflict(items[2].Err) || items[2].Status != http.StatusConflict {
		t.Errorf("item 2: %+v", items[2])
	}
	if items[2].SeqNo != db.UnassignedSeqNo {
		t.Errorf("failed item should carry unassigned seq_no, got %d", items[2].SeqNo)
	}
}

func TestBulk_TransportFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), evalFor("a"), evalFor("b")).
		Return([]rueidis.RedisResult{
			mock.ErrorResult(rueidis.ErrClosing),
			mock.ErrorResult(rueidis.ErrClosing),
		})

	s := NewStoreForTest(c)
	_, err := s.Bulk(context.Background(), []db.WriteRequest{
		{Index: "post", ID: "a", Body: []byte(`{}`)},
		{Index: "post", ID: "b", Body: []byte(`{}`)},
	}, db.RefreshNone)
	if !isDBError(err, db.OpBulk) {
		t.Fatalf("expected bulk db.Error, got %v", err)
	}
}

func TestBulk_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := NewStoreForTest(c)
	items, err := s.Bulk(context.Background(), nil, db.RefreshNone)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty result, got %v, %v", items, err)
	}
}

// --- search.go tests ---

func TestSearch_ParsesEnvelopes(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"FT.SEARCH", "occdex:post:idx", "@author:{alice}", "LIMIT", "0", "50", "DIALECT", "2",
		)).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisBlobString("occdex:{post}:1"),
			mock.RedisArray(
				mock.RedisBlobString("$"),
				mock.RedisBlobString(`{"_id":"1","_seq_no":3,"_primary_term":1,"_source":{"author":"alice"}}`),
			),
			mock.RedisBlobString("occdex:{post}:2"),
			mock.RedisArray(
				mock.RedisBlobString("$"),
				mock.RedisBlobString(`{"_seq_no":0,"_primary_term":1,"_source":{"author":"alice"}}`),
			),
		)))

	s := NewStoreForTest(c)
	resp, err := s.Search(context.Background(), &db.SearchRequest{
		Indices:          []string{"post"},
		Query:            query.Term("author", "alice"),
		Size:             50,
		SeqNoPrimaryTerm: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &db.SearchResponse{
		Total: 2,
		Hits: []db.Hit{
			{Index: "post", ID: "1", SeqNo: 3, PrimaryTerm: 1, Source: []byte(`{"author":"alice"}`)},
			{Index: "post", ID: "2", SeqNo: 0, PrimaryTerm: 1, Source: []byte(`{"author":"alice"}`)},
		},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch_WithoutVersions(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(1),
			mock.RedisBlobString("occdex:{post}:1"),
			mock.RedisArray(
				mock.RedisBlobString("$"),
				mock.RedisBlobString(`{"_id":"1","_seq_no":3,"_primary_term":1,"_source":{}}`),
			),
		)))

	s := NewStoreForTest(c)
	resp, err := s.Search(context.Background(), &db.SearchRequest{
		Indices: []string{"post"}, Query: query.MatchAll(), Size: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h := resp.Hits[0]; h.SeqNo != db.UnassignedSeqNo || h.PrimaryTerm != db.UnassignedPrimaryTerm {
		t.Errorf("expected unassigned version, got %d/%d", h.SeqNo, h.PrimaryTerm)
	}
}

func TestSearch_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c)
	resp, err := s.Search(context.Background(), &db.SearchRequest{
		Indices: []string{"post"}, Query: query.MatchAll(), Size: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Hits == nil || len(resp.Hits) != 0 || resp.Total != 0 {
		t.Errorf("expected empty non-nil hits, got %+v", resp)
	}
}

func TestSearch_MultiIndexPagesAfterMerge(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	reply := func(index string, ids ...string) rueidis.RedisResult {
		vals := []rueidis.RedisMessage{mock.RedisInt64(int64(len(ids)))}
		for _, id := range ids {
			vals = append(vals,
				mock.RedisBlobString("occdex:{"+index+"}:"+id),
				mock.RedisArray(
					mock.RedisBlobString("$"),
					mock.RedisBlobString(`{"_id":"`+id+`","_seq_no":0,"_primary_term":1,"_source":{}}`),
				),
			)
		}
		return mock.Result(mock.RedisArray(vals...))
	}

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "occdex:a:idx", "*", "LIMIT", "0", "3", "DIALECT", "2")).
		Return(reply("a", "1", "2"))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.SEARCH", "occdex:b:idx", "*", "LIMIT", "0", "3", "DIALECT", "2")).
		Return(reply("b", "3"))

	s := NewStoreForTest(c)
	resp, err := s.Search(context.Background(), &db.SearchRequest{
		Indices: []string{"a", "b"}, Query: query.MatchAll(), From: 1, Size: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Total != 3 {
		t.Errorf("expected total 3, got %d", resp.Total)
	}
	ids := make([]string, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		ids = append(ids, h.Index+"/"+h.ID)
	}
	if !slices.Equal(ids, []string{"a/2", "b/3"}) {
		t.Errorf("unexpected page %v", ids)
	}
}

func TestSearch_IndexNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool { return cmd[0] == "FT.SEARCH" })).
		Return(mock.Result(mock.RedisError("No such index occdex:post:idx")))

	s := NewStoreForTest(c)
	_, err := s.Search(context.Background(), &db.SearchRequest{
		Indices: []string{"post"}, Query: query.MatchAll(), Size: 10,
	})
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Fatalf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestBuildQuery(t *testing.T) {
	r, err := query.NewRange(nil, ptr(1.5), ptr(10.0), nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		q    query.Query
		want string
	}{
		{"match all", query.MatchAll(), "*"},
		{"match", query.Match("title", "hello world"), "@title:(hello|world)"},
		{"match escapes", query.Match("title", "a-b"), `@title:(a\-b)`},
		{"term", query.Term("author", "al ice"), `@author:{al\ ice}`},
		{"range", query.Between("likes", r), "@likes:[1.5 (10]"},
		{"ids", query.IDs("x", "y"), "@__id:{x | y}"},
		{
			"bool",
			query.Bool().Must(query.Term("author", "a")).MustNot(query.Term("tag", "b")),
			"(@author:{a}) -(@tag:{b})",
		},
		{
			"should",
			query.Bool().Should(query.Term("author", "a"), query.Term("author", "b")),
			"((@author:{a}) | (@author:{b}))",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildQuery(tc.q)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildQuery_Errors(t *testing.T) {
	for _, q := range []query.Query{nil, query.Match("title", "  "), query.Bool()} {
		if _, err := buildQuery(q); err == nil {
			t.Errorf("expected error for %#v", q)
		}
	}
}

func ptr(f float64) *float64 { return &f }

// --- index.go tests ---

func TestCreateIndex_Args(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"FT.CREATE", "occdex:post:idx", "ON", "JSON", "PREFIX", "1", "occdex:{post}:",
			"SCHEMA",
			"$._id", "AS", "__id", "TAG", "CASESENSITIVE",
			"$._source.title", "AS", "title", "TEXT",
			"$._source.author", "AS", "author", "TAG", "SEPARATOR", ";",
			"$._source.likes", "AS", "likes", "NUMERIC",
		)).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	def := buildIndex(t, db.NewIndex("post").
		Text("title").
		TagWithOpts("author", ";", false).
		Numeric("likes"))
	if err := s.CreateIndex(context.Background(), def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:   "post",
		Fields: []db.IndexField{{Name: "f", Type: db.IndexFieldTag}},
	}
	err := s.CreateIndex(context.Background(), idx)
	if !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestCreateIndex_Invalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := NewStoreForTest(c)
	err := s.CreateIndex(context.Background(), &db.IndexDefinition{Name: "post"})
	if !isDBError(err, db.OpCreateIndex) {
		t.Errorf("expected create-index db.Error, got %v", err)
	}
}

func TestDropIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "occdex:post:idx", "DD")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.DropIndex(context.Background(), "post"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDropIndex_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "occdex:post:idx", "DD")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	err := s.DropIndex(context.Background(), "post")
	if !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	tests := []struct {
		name    string
		reply   rueidis.RedisResult
		want    bool
		wantErr bool
	}{
		{"exists", mock.Result(mock.RedisArray(mock.RedisBlobString("index_name"))), true, false},
		{"missing", mock.Result(mock.RedisError("Unknown Index name")), false, false},
		{"failure", mock.ErrorResult(context.Canceled), false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			c := mock.NewClient(ctrl)
			c.EXPECT().
				Do(gomock.Any(), mock.Match("FT.INFO", "occdex:post:idx")).
				Return(tc.reply)

			s := NewStoreForTest(c)
			got, err := s.IndexExists(context.Background(), "post")
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func buildIndex(t *testing.T, b *db.IndexBuilder) *db.IndexDefinition {
	t.Helper()
	def, err := b.Build()
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	return def
}
