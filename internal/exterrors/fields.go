package exterrors

type fieldsErr interface {
	Fields() map[string]interface{}
}

type unwrapper interface {
	Unwrap() error
}

type fieldsWrap struct {
	err    error
	fields map[string]interface{}
}

func (fw fieldsWrap) Error() string   { return fw.err.Error() }
func (fw fieldsWrap) Unwrap() error   { return fw.err }
func (fw fieldsWrap) Fields() map[string]interface{} { return fw.fields }

// Fields walks the Unwrap chain of err and merges every Fields() map it
// finds, outer errors taking precedence over inner ones.
func Fields(err error) map[string]interface{} {
	fields := make(map[string]interface{}, 5)

	for err != nil {
		if fe, ok := err.(fieldsErr); ok {
			for k, v := range fe.Fields() {
				if _, exists := fields[k]; exists {
					continue
				}
				fields[k] = v
			}
		}

		uw, ok := err.(unwrapper)
		if !ok {
			break
		}
		err = uw.Unwrap()
	}

	return fields
}

// WithFields attaches an ad-hoc field map to an arbitrary error without
// requiring it to be an *Error.
func WithFields(err error, fields map[string]interface{}) error {
	return fieldsWrap{err: err, fields: fields}
}
