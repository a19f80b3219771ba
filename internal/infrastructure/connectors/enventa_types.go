package connectors

import (
	"time"

	"github.com/shopspring/decimal"
)

// The enventa connector service exposes the ERP's German field names.

// enventaTime parses the service's timestamps, which come without a zone
type enventaTime struct {
	time.Time
}

const enventaTimeLayout = "2006-01-02T15:04:05"

// UnmarshalJSON accepts RFC 3339 and the zone-less enventa layout (local ERP time, treated as UTC)
func (t *enventaTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse(enventaTimeLayout, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// EnventaListResponse is the envelope of all list endpoints
type EnventaListResponse[T any] struct {
	Daten   []T  `json:"Daten"`
	Seite   int  `json:"Seite"`
	Groesse int  `json:"Seitengroesse"`
	Weitere bool `json:"Weitere"`
}

// EnventaArtikel is an article as returned by the enventa service
type EnventaArtikel struct {
	ArtikelNr   string          `json:"ArtikelNr"`
	Bezeichnung string          `json:"Bezeichnung"`
	Einheit     string          `json:"Einheit"`
	VKPreis     decimal.Decimal `json:"VKPreis"`
	Bestand     decimal.Decimal `json:"Bestand"`
	Gesperrt    bool            `json:"Gesperrt"`
	GeaendertAm enventaTime     `json:"GeaendertAm"`
}

// EnventaKunde is a customer as returned by the enventa service
type EnventaKunde struct {
	KundenNr    string      `json:"KundenNr"`
	Name1       string      `json:"Name1"`
	Name2       string      `json:"Name2"`
	EMail       string      `json:"EMail"`
	UStIdNr     string      `json:"UStIdNr"`
	Gesperrt    bool        `json:"Gesperrt"`
	GeaendertAm enventaTime `json:"GeaendertAm"`
}

// EnventaPosition is an order line
type EnventaPosition struct {
	ArtikelNr string          `json:"ArtikelNr"`
	Menge     decimal.Decimal `json:"Menge"`
	Preis     decimal.Decimal `json:"Preis"`
}

// EnventaAuftrag is a sales order
type EnventaAuftrag struct {
	AuftragsNr  string            `json:"AuftragsNr"`
	Referenz    string            `json:"Referenz"`
	KundenNr    string            `json:"KundenNr"`
	Status      string            `json:"Status"`
	Positionen  []EnventaPosition `json:"Positionen"`
	Summe       decimal.Decimal   `json:"Summe"`
	ErstelltAm  enventaTime       `json:"ErstelltAm"`
	GeaendertAm enventaTime       `json:"GeaendertAm"`
}

// EnventaAuftragAnlage is the create order payload
type EnventaAuftragAnlage struct {
	Mandant    string            `json:"Mandant,omitempty"`
	Referenz   string            `json:"Referenz"`
	KundenNr   string            `json:"KundenNr"`
	Positionen []EnventaPosition `json:"Positionen"`
}

// EnventaAuftragAenderung is the update order payload
type EnventaAuftragAenderung struct {
	Status     string            `json:"Status,omitempty"`
	Positionen []EnventaPosition `json:"Positionen,omitempty"`
}

// EnventaVersion is returned by the system version endpoint
type EnventaVersion struct {
	Produkt string `json:"Produkt"`
	Version string `json:"Version"`
}
