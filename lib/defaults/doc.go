/*
Package defaults loads the static tables that seed the record processor:
releases, repositories, companies with their email domains and known users
with their company history.

The document is YAML (JSON works too):

	releases:
	  - release_name: Havana
	    end_date: 2013-Oct-17
	companies:
	  - company_name: IBM
	    domains: [ibm.com]
	users:
	  - launchpad_id: john_doe
	    emails: [john_doe@ibm.com]
	    companies:
	      - company_name: IBM
	        end_date: null

Dates are unix seconds, "2006-Jan-02", "2006-01-02" or RFC 3339.
*/
package defaults
