package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"lpukit/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func NewRow(tick int64, values []float64) Row {
	return Row{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		Tick:            tick,
		Values:          values,
	}
}

func EncodeRow(r Row) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRow(data []byte) (Row, error) {
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return Row{}, err
	}
	if err := checkVersion(row.VersionedRecord); err != nil {
		return Row{}, err
	}
	return row, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}

func errorsf(sentinel error, got, want int) error {
	return fmt.Errorf("%w: got=%d want=%d", sentinel, got, want)
}
