package geo

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindReader adapts *geoip2.Reader to the Reader interface this package
// depends on, keeping the third-party type out of the Enricher's surface.
type MaxMindReader struct {
	db *geoip2.Reader
}

// OpenMaxMindReader opens a GeoLite2-City database file.
func OpenMaxMindReader(path string) (*MaxMindReader, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindReader{db: db}, nil
}

func (m *MaxMindReader) Close() error {
	return m.db.Close()
}

func (m *MaxMindReader) City(ip net.IP) (Fields, error) {
	record, err := m.db.City(ip)
	if err != nil {
		return Fields{}, err
	}

	fields := Fields{
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
		Timezone:  record.Location.TimeZone,
	}
	if record.Country.IsoCode != "" {
		fields.Country = record.Country.IsoCode
	}
	if len(record.Subdivisions) > 0 {
		fields.Region = record.Subdivisions[0].Names["en"]
	}
	if record.City.Names != nil {
		fields.City = record.City.Names["en"]
	}
	return fields, nil
}
