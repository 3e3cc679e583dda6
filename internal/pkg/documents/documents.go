// Package documents holds the static catalog of letter templates offered by
// DocExpress. Pricing and tier membership live in the pricing package; this
// catalog covers presentation metadata and the per-template form schema used
// to validate payloads before any entitlement check runs.
package documents

import "fmt"

// Template describes one letter template.
type Template struct {
	Slug             string   `json:"slug"`
	Title            string   `json:"title"`
	ShortDescription string   `json:"short_description"`
	Category         string   `json:"category"`
	Popular          bool     `json:"popular"`
	RequiredFields   []string `json:"required_fields"`
}

// identityFields are shared by nearly every letter template.
var identityFields = []string{"prenom", "nom", "adresse", "codePostal", "ville"}

var catalog = []Template{
	// Travail
	{
		Slug:             "lettre-demission-cdi",
		Title:            "Lettre de démission CDI",
		ShortDescription: "Démissionnez de votre CDI en bonne et due forme",
		Category:         "Travail",
		Popular:          true,
		RequiredFields:   withIdentity("entreprise", "adresseEntreprise", "poste", "dateEmbauche", "dateDepart"),
	},
	{
		Slug:             "lettre-demission-cdd",
		Title:            "Lettre de démission CDD",
		ShortDescription: "Rompez votre CDD dans les règles",
		Category:         "Travail",
		RequiredFields:   withIdentity("entreprise", "adresseEntreprise", "poste", "motifRupture", "dateDepart"),
	},
	{
		Slug:             "demande-conge-parental",
		Title:            "Demande de congé parental",
		ShortDescription: "Demandez votre congé parental d'éducation",
		Category:         "Travail",
		RequiredFields:   withIdentity("entreprise", "adresseEntreprise", "typeConge", "dateNaissanceEnfant", "dateDebut", "duree"),
	},

	// Résiliation
	{
		Slug:             "resiliation-box-internet",
		Title:            "Résiliation box internet",
		ShortDescription: "Résiliez votre abonnement internet facilement",
		Category:         "Résiliation",
		Popular:          true,
		RequiredFields:   withIdentity("operateur", "numeroClient", "numeroLigne"),
	},
	{
		Slug:             "resiliation-mobile",
		Title:            "Résiliation forfait mobile",
		ShortDescription: "Résiliez votre forfait mobile sans difficulté",
		Category:         "Résiliation",
		Popular:          true,
		RequiredFields:   withIdentity("operateur", "numeroClient", "numeroMobile", "portabilite"),
	},
	{
		Slug:             "resiliation-assurance",
		Title:            "Résiliation assurance",
		ShortDescription: "Résiliez votre contrat d'assurance",
		Category:         "Résiliation",
		Popular:          true,
		RequiredFields:   withIdentity("assureur", "adresseAssureur", "typeAssurance", "numeroContrat", "motif"),
	},
	{
		Slug:             "resiliation-salle-sport",
		Title:            "Résiliation salle de sport",
		ShortDescription: "Résiliez votre abonnement fitness",
		Category:         "Résiliation",
		RequiredFields:   withIdentity("salleSport", "adresseSalle", "numeroAbonnement", "motif"),
	},

	// Logement
	{
		Slug:             "preavis-logement",
		Title:            "Préavis de départ logement",
		ShortDescription: "Informez votre propriétaire de votre départ",
		Category:         "Logement",
		Popular:          true,
		RequiredFields:   withIdentity("proprietaire", "adresseProprietaire", "adresseLogement", "dateDepart"),
	},
	{
		Slug:             "demande-logement-social",
		Title:            "Demande de logement social",
		ShortDescription: "Adressez votre demande de logement social",
		Category:         "Logement",
		RequiredFields:   withIdentity("situationFamiliale", "nombrePersonnes", "motifDemande"),
	},

	// Attestations
	{
		Slug:             "attestation-honneur",
		Title:            "Attestation sur l'honneur",
		ShortDescription: "Attestation sur l'honneur personnalisable",
		Category:         "Attestations",
		Popular:          true,
		RequiredFields:   withIdentity("dateNaissance", "lieuNaissance", "objet"),
	},
	{
		Slug:             "attestation-hebergement",
		Title:            "Attestation d'hébergement",
		ShortDescription: "Certifiez héberger quelqu'un à votre domicile",
		Category:         "Attestations",
		Popular:          true,
		RequiredFields: []string{
			"prenomHebergeur", "nomHebergeur", "dateNaissanceHebergeur",
			"adresse", "codePostal", "ville",
			"prenomHeberge", "nomHeberge", "dateNaissanceHeberge", "dateDebut",
		},
	},
	{
		Slug:             "autorisation-parentale",
		Title:            "Autorisation parentale",
		ShortDescription: "Autorisez votre enfant mineur pour diverses activités",
		Category:         "Attestations",
		Popular:          true,
		RequiredFields:   withIdentity("prenomEnfant", "nomEnfant", "dateNaissanceEnfant", "typeAutorisation", "details"),
	},

	// Administratif
	{
		Slug:             "contestation-contravention",
		Title:            "Contestation de contravention",
		ShortDescription: "Contestez une amende ou un PV",
		Category:         "Administratif",
		RequiredFields:   withIdentity("numeroAvis", "dateInfraction", "motifContestation"),
	},
	{
		Slug:             "declaration-perte-vol",
		Title:            "Déclaration de perte ou vol",
		ShortDescription: "Déclarez la perte ou le vol d'un document",
		Category:         "Administratif",
		RequiredFields:   withIdentity("typeDocument", "dateConstat", "circonstances"),
	},
	{
		Slug:             "demande-remboursement",
		Title:            "Demande de remboursement",
		ShortDescription: "Réclamez un remboursement à un commerçant",
		Category:         "Administratif",
		RequiredFields:   withIdentity("destinataire", "adresseDestinataire", "objetAchat", "dateAchat", "montant", "motif"),
	},
	{
		Slug:             "reclamation-colis",
		Title:            "Réclamation colis",
		ShortDescription: "Réclamez pour un colis perdu ou endommagé",
		Category:         "Administratif",
		RequiredFields:   withIdentity("transporteur", "numeroSuivi", "dateExpedition", "probleme"),
	},
}

var bySlug = func() map[string]Template {
	m := make(map[string]Template, len(catalog))
	for _, doc := range catalog {
		m[doc.Slug] = doc
	}
	return m
}()

func withIdentity(fields ...string) []string {
	out := make([]string, 0, len(identityFields)+len(fields))
	out = append(out, identityFields...)
	out = append(out, fields...)
	return out
}

// All returns the full catalog in display order.
func All() []Template {
	return catalog
}

// GetBySlug resolves a slug to its template.
func GetBySlug(slug string) (Template, bool) {
	doc, ok := bySlug[slug]
	return doc, ok
}

// ValidateForm checks that every required field of the template is present
// and non-empty in the submitted form data.
func ValidateForm(slug string, form map[string]string) error {
	doc, ok := bySlug[slug]
	if !ok {
		return fmt.Errorf("unknown document %q", slug)
	}
	for _, field := range doc.RequiredFields {
		if form[field] == "" {
			return fmt.Errorf("missing required field %q", field)
		}
	}
	return nil
}
