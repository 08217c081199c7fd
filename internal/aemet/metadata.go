package aemet

// Metadata describes a dataset, as served at an envelope's metadatos URL.
type Metadata struct {
	GeneratingUnit string  `json:"unidad_generadora"`
	Periodicity    string  `json:"periodicidad"`
	Description    string  `json:"descripcion"`
	Format         string  `json:"formato"`
	Copyright      string  `json:"copyright"`
	LegalNote      string  `json:"notaLegal"`
	Fields         []Field `json:"campos"`
}

// Field documents one column of a dataset.
type Field struct {
	ID          string `json:"id"`
	Description string `json:"descripcion"`
	DataType    string `json:"tipo_datos"`
	Unit        string `json:"unidad,omitempty"`
	Required    bool   `json:"requerido"`
}

// Field returns the description of the field with the given id.
func (m *Metadata) Field(id string) (Field, bool) {
	for _, f := range m.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
