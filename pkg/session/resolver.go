package session

// PrincipalNameAttribute is the dedicated attribute consulted by the default
// principal resolver. Applications that want their sessions indexed by user
// set this attribute to the user's name.
const PrincipalNameAttribute = "PRINCIPAL_NAME"

// PrincipalResolver derives the principal (user) name a session belongs to
// from its raw record. Returning ok=false means the session has no
// principal and is absent from the principal index.
//
// The core has no notion of any particular security framework: callers that
// keep identity inside an encoded security-context attribute supply their
// own resolver that knows how to unwrap it.
type PrincipalResolver func(rec *Record) (name string, ok bool)

// principalFromAttribute builds the default resolver: decode the dedicated
// index attribute with the repository's codec.
func principalFromAttribute(codec Codec) PrincipalResolver {
	return func(rec *Record) (string, bool) {
		data, ok := rec.Attributes[PrincipalNameAttribute]
		if !ok {
			return "", false
		}
		var name string
		if err := codec.Decode(data, &name); err != nil || name == "" {
			return "", false
		}
		return name, true
	}
}
