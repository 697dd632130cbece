package redis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/occdex/internal/db"
)

const conflictMarker = "VERSION_CONFLICT"

// writeScript applies one conditional write atomically.
//
// KEYS[1] document key, KEYS[2] primary-term key.
// ARGV: op type, if_seq_no, if_primary_term, id, has precondition ("1"/"0"), source JSON.
// Returns {seq_no, primary_term, status}.
const writeScript = `
local term = tonumber(redis.call('GET', KEYS[2]) or '0')
if term == 0 then
  term = 1
  redis.call('SET', KEYS[2], term)
end

local exists = false
local curSeq = -2
local curTerm = 0
local raw = redis.call('JSON.GET', KEYS[1], '$._seq_no', '$._primary_term')
if raw then
  local v = cjson.decode(raw)
  exists = true
  curSeq = v['$._seq_no'][1]
  curTerm = v['$._primary_term'][1]
end

local id = ARGV[4]
if ARGV[1] == 'create' and exists then
  return redis.error_reply('VERSION_CONFLICT [' .. id .. ']: document already exists (current seq_no [' .. curSeq .. '])')
end
if ARGV[5] == '1' then
  local ifSeq = tonumber(ARGV[2])
  local ifTerm = tonumber(ARGV[3])
  if not exists then
    return redis.error_reply('VERSION_CONFLICT [' .. id .. ']: required seq_no [' .. ifSeq .. '], primary term [' .. ifTerm .. '] but no document was found')
  end
  if curSeq ~= ifSeq or curTerm ~= ifTerm then
    return redis.error_reply('VERSION_CONFLICT [' .. id .. ']: required seq_no [' .. ifSeq .. '], primary term [' .. ifTerm .. ']; current document has seq_no [' .. curSeq .. '] and primary term [' .. curTerm .. ']')
  end
end

local seq = 0
local status = 201
if exists then
  seq = curSeq + 1
  status = 200
end

local doc = '{"_id":' .. cjson.encode(id) .. ',"_seq_no":' .. seq .. ',"_primary_term":' .. term .. ',"_source":' .. ARGV[6] .. '}'
redis.call('JSON.SET', KEYS[1], '$', doc)
return {seq, term, status}
`

// Index runs the write script for a single document.
// FT indexes JSON documents synchronously, so every refresh policy is already
// satisfied when the script returns.
func (s *Store) Index(ctx context.Context, req *db.WriteRequest) (db.WriteResult, error) {
	cmd, err := s.writeCmd(req)
	if err != nil {
		return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: err}
	}

	res, _, err := parseWriteResult(s.do(ctx, cmd))
	if err != nil {
		return db.WriteResult{}, &db.Error{Op: db.OpIndex, Err: err}
	}
	return res, nil
}

// Bulk pipelines one write script per request in a single DoMulti round-trip.
func (s *Store) Bulk(ctx context.Context, reqs []db.WriteRequest, _ db.Refresh) ([]db.BulkItemResult, error) {
	out := make([]db.BulkItemResult, len(reqs))
	if len(reqs) == 0 {
		return out, nil
	}

	cmds := make([]rueidis.Completed, 0, len(reqs))
	pos := make([]int, 0, len(reqs))
	for i := range reqs {
		out[i] = db.BulkItemResult{
			Index:       reqs[i].Index,
			ID:          reqs[i].ID,
			SeqNo:       db.UnassignedSeqNo,
			PrimaryTerm: db.UnassignedPrimaryTerm,
		}
		cmd, err := s.writeCmd(&reqs[i])
		if err != nil {
			out[i].Status = http.StatusBadRequest
			out[i].Err = err
			continue
		}
		cmds = append(cmds, cmd)
		pos = append(pos, i)
	}

	if len(cmds) == 0 {
		return out, nil
	}

	results := s.client.DoMulti(ctx, cmds...)
	if err := transportFailure(results); err != nil {
		return nil, &db.Error{Op: db.OpBulk, Err: err}
	}

	for j, res := range results {
		i := pos[j]
		wr, status, err := parseWriteResult(res)
		out[i].Status = status
		if err != nil {
			out[i].Err = err
			continue
		}
		out[i].SeqNo = wr.SeqNo
		out[i].PrimaryTerm = wr.PrimaryTerm
	}
	return out, nil
}

func (s *Store) writeCmd(req *db.WriteRequest) (rueidis.Completed, error) {
	if req.Index == "" {
		return rueidis.Completed{}, errors.New("index is required")
	}
	if req.ID == "" {
		return rueidis.Completed{}, errors.New("document id is required")
	}
	if req.ContentType != "" && req.ContentType != db.ContentTypeJSON {
		return rueidis.Completed{}, fmt.Errorf("unsupported content type %q", req.ContentType)
	}
	if len(req.Body) == 0 {
		return rueidis.Completed{}, errors.New("document body is required")
	}

	opType := req.OpType
	if opType == "" {
		opType = db.OpTypeIndex
	}
	precondition := "0"
	if req.HasPrecondition {
		precondition = "1"
	}

	return s.b().Arbitrary("EVAL").
		Args(writeScript, "2").
		Keys(s.docKey(req.Index, req.ID), s.termKey(req.Index)).
		Args(
			string(opType),
			strconv.FormatInt(req.IfSeqNo, 10),
			strconv.FormatInt(req.IfPrimaryTerm, 10),
			req.ID,
			precondition,
			string(req.Body),
		).
		Build(), nil
}

// parseWriteResult decodes the script reply and classifies failures.
func parseWriteResult(res rueidis.RedisResult) (db.WriteResult, int, error) {
	arr, err := res.ToArray()
	if err != nil {
		if isRedisErr(err, conflictMarker) {
			return db.WriteResult{}, http.StatusConflict, fmt.Errorf("%w: %s", db.ErrVersionConflict, err.Error())
		}
		if _, ok := rueidis.IsRedisErr(err); ok {
			return db.WriteResult{}, http.StatusBadRequest, err
		}
		return db.WriteResult{}, http.StatusServiceUnavailable, err
	}
	if len(arr) != 3 {
		return db.WriteResult{}, http.StatusInternalServerError,
			fmt.Errorf("unexpected write reply length %d", len(arr))
	}

	vals := make([]int64, 3)
	for i := range arr {
		v, err := arr[i].AsInt64()
		if err != nil {
			return db.WriteResult{}, http.StatusInternalServerError, fmt.Errorf("parse write reply: %w", err)
		}
		vals[i] = v
	}
	return db.WriteResult{SeqNo: vals[0], PrimaryTerm: vals[1]}, int(vals[2]), nil
}

// transportFailure returns an error when no command reached the server,
// meaning the batch was never applied.
func transportFailure(results []rueidis.RedisResult) error {
	var first error
	for _, res := range results {
		err := res.Error()
		if err == nil {
			return nil
		}
		if _, ok := rueidis.IsRedisErr(err); ok {
			return nil
		}
		if first == nil {
			first = err
		}
	}
	return first
}
