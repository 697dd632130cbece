package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/occdex/internal/db"
)

// Index writes one document with its optional seq_no / primary_term precondition.
func (s *Store) Index(ctx context.Context, req *db.WriteRequest) (db.WriteResult, error) {
	if err := validateWrite(req); err != nil {
		return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: err}
	}

	r := esapi.IndexRequest{
		Index:      req.Index,
		DocumentID: req.ID,
		Body:       bytes.NewReader(req.Body),
		Refresh:    string(req.Refresh),
	}
	if req.OpType == db.OpTypeCreate {
		r.OpType = string(db.OpTypeCreate)
	}
	if req.HasPrecondition {
		seq, err := intParam(req.IfSeqNo)
		if err != nil {
			return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: fmt.Errorf("if_seq_no: %w", err)}
		}
		term, err := intParam(req.IfPrimaryTerm)
		if err != nil {
			return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: fmt.Errorf("if_primary_term: %w", err)}
		}
		r.IfSeqNo = &seq
		r.IfPrimaryTerm = &term
	}

	res, err := r.Do(ctx, s.client)
	if err != nil {
		return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: responseError(res)}
	}

	var body struct {
		SeqNo       int64 `json:"_seq_no"`
		PrimaryTerm int64 `json:"_primary_term"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: fmt.Errorf("decode response: %w", err)}
	}
	return db.WriteResult{SeqNo: body.SeqNo, PrimaryTerm: body.PrimaryTerm}, nil
}

// bulkAction is the metadata line of one _bulk item.
type bulkAction struct {
	Index         string `json:"_index"`
	ID            string `json:"_id"`
	IfSeqNo       *int64 `json:"if_seq_no,omitempty"`
	IfPrimaryTerm *int64 `json:"if_primary_term,omitempty"`
}

type bulkResponse struct {
	Errors bool                          `json:"errors"`
	Items  []map[string]bulkItemResponse `json:"items"`
}

type bulkItemResponse struct {
	Index       string      `json:"_index"`
	ID          string      `json:"_id"`
	Status      int         `json:"status"`
	SeqNo       *int64      `json:"_seq_no"`
	PrimaryTerm *int64      `json:"_primary_term"`
	Error       *errorCause `json:"error"`
}

// Bulk submits every valid request as one _bulk NDJSON body. Items that fail
// local validation are reported as 400 without being sent.
func (s *Store) Bulk(ctx context.Context, reqs []db.WriteRequest, refresh db.Refresh) ([]db.BulkItemResult, error) {
	out := make([]db.BulkItemResult, len(reqs))
	if len(reqs) == 0 {
		return out, nil
	}

	var buf bytes.Buffer
	pos := make([]int, 0, len(reqs))
	for i := range reqs {
		out[i] = db.BulkItemResult{
			Index:       reqs[i].Index,
			ID:          reqs[i].ID,
			SeqNo:       db.UnassignedSeqNo,
			PrimaryTerm: db.UnassignedPrimaryTerm,
		}
		if err := appendBulkItem(&buf, &reqs[i]); err != nil {
			out[i].Status = http.StatusBadRequest
			out[i].Err = err
			continue
		}
		pos = append(pos, i)
	}

	if len(pos) == 0 {
		return out, nil
	}

	res, err := esapi.BulkRequest{
		Body:    &buf,
		Refresh: string(refresh),
	}.Do(ctx, s.client)
	if err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, &db.Error{Op: db.OpBulk, Err: responseError(res)}
	}

	var body bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(body.Items) != len(pos) {
		return nil, &db.Error{Op: db.OpBulk,
			Err: fmt.Errorf("bulk returned %d items for %d requests", len(body.Items), len(pos))}
	}

	for j, entry := range body.Items {
		i := pos[j]
		for _, item := range entry {
			out[i].Status = item.Status
			if item.Error != nil {
				out[i].Err = causeError(item.Status, *item.Error)
				continue
			}
			if item.SeqNo != nil {
				out[i].SeqNo = *item.SeqNo
			}
			if item.PrimaryTerm != nil {
				out[i].PrimaryTerm = *item.PrimaryTerm
			}
		}
	}
	return out, nil
}

func appendBulkItem(buf *bytes.Buffer, req *db.WriteRequest) error {
	if err := validateWrite(req); err != nil {
		return err
	}

	var source bytes.Buffer
	if err := json.Compact(&source, req.Body); err != nil {
		return fmt.Errorf("parse body: %w", err)
	}

	action := bulkAction{Index: req.Index, ID: req.ID}
	if req.HasPrecondition {
		seq, term := req.IfSeqNo, req.IfPrimaryTerm
		action.IfSeqNo = &seq
		action.IfPrimaryTerm = &term
	}
	name := string(db.OpTypeIndex)
	if req.OpType == db.OpTypeCreate {
		name = string(db.OpTypeCreate)
	}

	meta, err := json.Marshal(map[string]bulkAction{name: action})
	if err != nil {
		return err
	}
	buf.Write(meta)
	buf.WriteByte('\n')
	buf.Write(source.Bytes())
	buf.WriteByte('\n')
	return nil
}

func validateWrite(req *db.WriteRequest) error {
	if req.Index == "" {
		return errors.New("index is required")
	}
	if req.ID == "" {
		return errors.New("document id is required")
	}
	if req.ContentType != "" && req.ContentType != db.ContentTypeJSON {
		return fmt.Errorf("unsupported content type %q", req.ContentType)
	}
	if len(req.Body) == 0 {
		return errors.New("document body is required")
	}
	return nil
}
