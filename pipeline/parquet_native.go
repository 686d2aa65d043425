//go:build !js

package pipeline

import (
	"math"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type canonicalParquetRow struct {
	TSUTCISO   string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TSLocalISO string  `parquet:"name=ts_local_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS   float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	PowerW     float64 `parquet:"name=power_w, type=DOUBLE"`
	HRBPM      float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	CadenceRPM float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	SpeedMPS   float64 `parquet:"name=speed_mps, type=DOUBLE"`
	DistanceM  float64 `parquet:"name=distance_m, type=DOUBLE"`
	AltitudeM  float64 `parquet:"name=altitude_m, type=DOUBLE"`
	LatDeg     float64 `parquet:"name=lat_deg, type=DOUBLE"`
	LonDeg     float64 `parquet:"name=lon_deg, type=DOUBLE"`
	ValidPower bool    `parquet:"name=valid_power, type=BOOLEAN"`
	Moving     bool    `parquet:"name=moving, type=BOOLEAN"`
	Zone       int32   `parquet:"name=zone, type=INT32"`
}

func marshalCanonicalParquet(samples []CanonicalSample) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(canonicalParquetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		row := canonicalParquetRow{
			TSUTCISO:   s.TSUTCISO,
			TSLocalISO: s.TSLocalISO,
			ElapsedS:   s.ElapsedS,
			PowerW:     valueOrNaN(s.PowerW),
			HRBPM:      valueOrNaN(s.HRBPM),
			CadenceRPM: valueOrNaN(s.CadenceRPM),
			SpeedMPS:   valueOrNaN(s.SpeedMPS),
			DistanceM:  valueOrNaN(s.DistanceM),
			AltitudeM:  valueOrNaN(s.AltitudeM),
			LatDeg:     valueOrNaN(s.LatDeg),
			LonDeg:     valueOrNaN(s.LonDeg),
			ValidPower: s.ValidPower,
			Moving:     s.Moving,
			Zone:       int32(s.Zone),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
